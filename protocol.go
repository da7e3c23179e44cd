package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoin           = "join"
	MsgUpdatePosition = "update_position"
	MsgFireShot       = "fire_shot"
	MsgHit            = "hit"          // self-reported, trusted-client mode only
	MsgUpdateScore    = "update_score" // self-reported, trusted-client mode only
	MsgUpdateLives    = "update_lives" // self-reported, trusted-client mode only
	MsgStartGame      = "start_game"
	MsgRestart        = "restart"
	MsgHeartbeat      = "heartbeat"
	MsgRegister       = "register"
	MsgLogin          = "login"
	MsgAuth           = "auth" // token re-auth
)

// Server -> Client message types
const (
	MsgWelcome       = "welcome"
	MsgError         = "error"
	MsgState         = "state"
	MsgNameConfirmed = "name_confirmed"
	MsgStarted       = "started"
	MsgGameOver      = "game_over"
	MsgRestarted     = "restarted"
	MsgPlayerLeft    = "player_left"
	MsgAuthOK        = "auth_ok"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinMsg sets the player's display name, once
type JoinMsg struct {
	Username string `json:"username"`
}

// PositionMsg is the client's reported ship position
type PositionMsg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FireMsg is the claimed spawn position of a laser
type FireMsg struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ScoreMsg is a client-reported score (trusted-client mode)
type ScoreMsg struct {
	Score int `json:"score"`
}

// LivesMsg is a client-reported lives count (trusted-client mode)
type LivesMsg struct {
	Lives int `json:"lives"`
}

// WelcomeMsg carries the server-assigned player id, sent once on accept
type WelcomeMsg struct {
	ID int `json:"assignedId"`
}

// ErrorMsg sends an error to the client before the connection is closed
type ErrorMsg struct {
	Msg string `json:"reason"`
}

// NameConfirmedMsg acknowledges a join
type NameConfirmedMsg struct {
	Name string `json:"name"`
}

// PlayerLeftMsg notifies survivors of a disconnect
type PlayerLeftMsg struct {
	ID int `json:"id"`
}

// GameOverMsg is broadcast when every player has run out of lives
type GameOverMsg struct {
	Scores map[int]int `json:"scores"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates an existing account
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg re-authenticates with a previously issued token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg is the response to register/login/auth
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"playerId"`
}

// PlayerSnapshot is one player's entry in the state snapshot
type PlayerSnapshot struct {
	X     float64 `json:"x" msgpack:"x"`
	Y     float64 `json:"y" msgpack:"y"`
	Lives int     `json:"lives" msgpack:"lives"`
	Score int     `json:"score" msgpack:"score"`
	Name  string  `json:"name" msgpack:"name"`
	Alive bool    `json:"alive" msgpack:"alive"`
}

// MeteorSnapshot is one meteor's entry in the state snapshot
type MeteorSnapshot struct {
	ID       int     `json:"id" msgpack:"id"`
	X        float64 `json:"x" msgpack:"x"`
	Y        float64 `json:"y" msgpack:"y"`
	Rotation float64 `json:"rotation" msgpack:"rotation"`
}

// LaserSnapshot is one laser's entry in the state snapshot
type LaserSnapshot struct {
	ID      int     `json:"id" msgpack:"id"`
	X       float64 `json:"x" msgpack:"x"`
	Y       float64 `json:"y" msgpack:"y"`
	OwnerID int     `json:"ownerId" msgpack:"ownerId"`
}

// GameSnapshot is the full world state sent to clients. Broadcast as a
// msgpack binary frame at the broadcast rate, and sent as a JSON state
// envelope in reply to a heartbeat.
type GameSnapshot struct {
	Status     string                 `json:"status" msgpack:"status"`
	Players    map[int]PlayerSnapshot `json:"players" msgpack:"players"`
	Meteors    []MeteorSnapshot       `json:"meteors" msgpack:"meteors"`
	Lasers     []LaserSnapshot        `json:"lasers" msgpack:"lasers"`
	NumPlayers int                    `json:"numPlayers" msgpack:"numPlayers"`
	Tick       uint64                 `json:"tick" msgpack:"tick"`
}
