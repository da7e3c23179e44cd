package main

import "time"

const (
	MeteorHitRadius = 50.0 // meteor vs player, px at 1280x800
	MeteorMinSpeed  = 400.0
	MeteorMaxSpeed  = 500.0
	MeteorMaxDrift  = 0.5  // horizontal velocity as a fraction of fall speed
	MeteorSpinMin   = 50.0 // degrees/s, cosmetic
	MeteorSpinMax   = 80.0
	MeteorLifetime  = 5 * time.Second
	MeteorFloorY    = 900.0 // removal boundary below the 800px playfield
	MeteorSpawnMinY = -200.0
	MeteorSpawnMaxY = -100.0
)

// Meteor falls from above the playfield until it expires, leaves the
// bottom boundary, or collides with a player or laser.
type Meteor struct {
	ID        int
	X, Y      float64
	VX, VY    float64
	Rotation  float64 // degrees, cosmetic only
	Spin      float64 // degrees/s
	SpawnedAt time.Time
}

// NewMeteor spawns a meteor above the visible top edge with randomized
// drift and spin
func NewMeteor(id int) *Meteor {
	speed := randRange(MeteorMinSpeed, MeteorMaxSpeed)
	return &Meteor{
		ID:        id,
		X:         randRange(0, FieldWidth),
		Y:         randRange(MeteorSpawnMinY, MeteorSpawnMaxY),
		VX:        speed * randRange(-MeteorMaxDrift, MeteorMaxDrift),
		VY:        speed,
		Spin:      randRange(MeteorSpinMin, MeteorSpinMax),
		SpawnedAt: time.Now(),
	}
}

// Update moves the meteor one tick (dt in seconds)
func (m *Meteor) Update(dt float64) {
	m.X += m.VX * dt
	m.Y += m.VY * dt
	m.Rotation += m.Spin * dt
}

// Expired reports whether the meteor has outlived its window or fallen
// past the bottom boundary
func (m *Meteor) Expired(now time.Time) bool {
	return now.Sub(m.SpawnedAt) > MeteorLifetime || m.Y > MeteorFloorY
}

// ToSnapshot converts to the protocol snapshot entry
func (m *Meteor) ToSnapshot() MeteorSnapshot {
	return MeteorSnapshot{
		ID:       m.ID,
		X:        m.X,
		Y:        m.Y,
		Rotation: m.Rotation,
	}
}
