package main

const (
	LaserSpeed     = 400.0 // px/s, fixed upward
	LaserHitRadius = 40.0  // laser vs meteor, px at 1280x800
	ScorePerMeteor = 10
)

// Laser is a player-fired projectile. Spawn position is the client's
// claim; the server enforces the per-player fire cooldown.
type Laser struct {
	ID      int
	OwnerID int
	X, Y    float64
}

// NewLaser creates a laser at the claimed position
func NewLaser(id, ownerID int, x, y float64) *Laser {
	return &Laser{ID: id, OwnerID: ownerID, X: x, Y: y}
}

// Update moves the laser upward one tick (dt in seconds)
func (l *Laser) Update(dt float64) {
	l.Y -= LaserSpeed * dt
}

// OffScreen reports whether the laser has left the top boundary
func (l *Laser) OffScreen() bool {
	return l.Y < 0
}

// ToSnapshot converts to the protocol snapshot entry
func (l *Laser) ToSnapshot() LaserSnapshot {
	return LaserSnapshot{ID: l.ID, X: l.X, Y: l.Y, OwnerID: l.OwnerID}
}
