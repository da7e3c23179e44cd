package main

// MatchStatus represents the lifecycle of the match
type MatchStatus int

const (
	StatusWaiting  MatchStatus = 0 // fewer than MinPlayers connected
	StatusReady    MatchStatus = 1 // enough players, not yet started
	StatusRunning  MatchStatus = 2 // simulation active
	StatusFinished MatchStatus = 3 // everyone out of lives, awaiting restart votes
)

func (s MatchStatus) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MatchConfig holds settings for the single match this process hosts
type MatchConfig struct {
	MinPlayers   int
	MaxPlayers   int
	AutoStart    bool // start as soon as MinPlayers is reached
	TrustClients bool // accept client-reported hit/score/lives messages
}

// DefaultMatchConfig returns the standard configuration: two to four
// players, explicit start signal, server-authoritative collisions.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		MinPlayers: 2,
		MaxPlayers: 4,
	}
}

// Normalize clamps the player thresholds to the supported 2-4 range
func (c MatchConfig) Normalize() MatchConfig {
	if c.MinPlayers < 2 {
		c.MinPlayers = 2
	}
	if c.MaxPlayers < c.MinPlayers {
		c.MaxPlayers = c.MinPlayers
	}
	if c.MaxPlayers > 4 {
		c.MaxPlayers = 4
	}
	return c
}
