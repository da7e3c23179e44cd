package main

import "fmt"

const (
	StartingLives = 3
	FireCooldown  = 0.25 // seconds between shots, enforced server-side
	StartX        = FieldWidth / 2
	StartY        = FieldHeight / 2
)

// Player represents one connected ship. Position is client-reported
// (last-write-wins); lives and score are owned by the simulation loop
// unless the server runs in trusted-client mode.
type Player struct {
	ID     int
	Name   string
	X, Y   float64
	Lives  int
	Score  int
	FireCD float64 // fire cooldown remaining, seconds

	named  bool  // display name set via join, once
	AuthID int64 // 0 = guest
}

// NewPlayer creates a player at the default spawn with full lives
func NewPlayer(id int) *Player {
	return &Player{
		ID:    id,
		Name:  fmt.Sprintf("Player%d", id),
		X:     StartX,
		Y:     StartY,
		Lives: StartingLives,
	}
}

// Alive is derived: a player with zero lives is dead
func (p *Player) Alive() bool {
	return p.Lives > 0
}

// ApplyHit decrements lives with a floor of zero. Calling it on a dead
// player is a harmless no-op.
func (p *Player) ApplyHit() {
	if p.Lives > 0 {
		p.Lives--
	}
}

// CanFire returns true if the player may spawn a laser this instant
func (p *Player) CanFire() bool {
	return p.Alive() && p.FireCD <= 0
}

// Reset restores lives and score for a match restart
func (p *Player) Reset() {
	p.Lives = StartingLives
	p.Score = 0
	p.FireCD = 0
}

// ToSnapshot converts to the protocol snapshot entry
func (p *Player) ToSnapshot() PlayerSnapshot {
	return PlayerSnapshot{
		X:     p.X,
		Y:     p.Y,
		Lives: p.Lives,
		Score: p.Score,
		Name:  p.Name,
		Alive: p.Alive(),
	}
}
