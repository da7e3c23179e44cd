package main

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	TickRate       = 60 // simulation ticks per second
	BroadcastRate  = 30 // state broadcasts per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = TickRate / BroadcastRate

	SpawnInterval = 500 * time.Millisecond

	FieldWidth  = 1280.0
	FieldHeight = 800.0
)

// ErrServerFull is returned when the player slot limit is reached
var ErrServerFull = errors.New("server full")

// ErrNameSet is returned on a second join attempt for the same player
var ErrNameSet = errors.New("name already confirmed")

// Broadcaster is the send-side of one client connection. Both methods
// enqueue on a buffered channel and never block; a slow client drops
// frames instead of stalling the simulation.
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// matchResult is one player's line in the recorded match history
type matchResult struct {
	AuthID    int64
	Name      string
	Score     int
	LivesLeft int
}

// Game is the authoritative world model. Every read-modify-write of
// players, meteors, lasers or status happens under mu; snapshots are
// deep copies so serialization and socket writes stay outside the lock.
type Game struct {
	mu  sync.RWMutex
	cfg MatchConfig

	status  MatchStatus
	players map[int]*Player
	meteors map[int]*Meteor
	lasers  map[int]*Laser
	clients map[int]Broadcaster // playerID -> connection

	nextPlayerID int
	nextMeteorID int
	nextLaserID  int

	restartVotes map[int]bool
	tick         uint64
	startedAt    time.Time

	stop chan struct{}

	db        *DB        // nil when match history is disabled
	analytics *Analytics // nil when match history is disabled
}

// NewGame creates the world model for the single match this process hosts
func NewGame(cfg MatchConfig) *Game {
	return &Game{
		cfg:          cfg.Normalize(),
		status:       StatusWaiting,
		players:      make(map[int]*Player),
		meteors:      make(map[int]*Meteor),
		lasers:       make(map[int]*Laser),
		clients:      make(map[int]Broadcaster),
		restartVotes: make(map[int]bool),
		nextPlayerID: 1,
		nextMeteorID: 1,
		nextLaserID:  1,
		stop:         make(chan struct{}),
	}
}

// SetStore wires the optional match-history store
func (g *Game) SetStore(db *DB, analytics *Analytics) {
	g.db = db
	g.analytics = analytics
}

// Run drives the fixed-tick simulation loop for the process lifetime
func (g *Game) Run() {
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	dt := 1.0 / float64(TickRate)
	for {
		select {
		case <-ticker.C:
			g.update(dt, time.Now())
		case <-g.stop:
			return
		}
	}
}

// RunSpawner injects meteors on a fixed interval while the match runs
func (g *Game) RunSpawner() {
	ticker := time.NewTicker(SpawnInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.SpawnMeteor()
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the simulation and spawner loops (tests; the process
// otherwise runs them until termination)
func (g *Game) Stop() {
	select {
	case <-g.stop:
	default:
		close(g.stop)
	}
}

// AddPlayer allocates the next player id. Fails with ErrServerFull when
// the slot limit is reached; ids are never reused.
func (g *Game) AddPlayer() (int, error) {
	var autoStarted bool

	g.mu.Lock()
	if len(g.players) >= g.cfg.MaxPlayers {
		g.mu.Unlock()
		return 0, ErrServerFull
	}
	id := g.nextPlayerID
	g.nextPlayerID++
	g.players[id] = NewPlayer(id)

	if g.status == StatusWaiting && len(g.players) >= g.cfg.MinPlayers {
		g.status = StatusReady
		if g.cfg.AutoStart {
			g.startLocked()
			autoStarted = true
		}
	}
	g.mu.Unlock()

	g.track(EvtPlayerJoin, 0, "")
	if autoStarted {
		g.broadcastEnvelope(Envelope{T: MsgStarted})
		g.track(EvtMatchStart, 0, "")
	}
	return id, nil
}

// SetClient associates a connection with a player for broadcasts
func (g *Game) SetClient(playerID int, client Broadcaster) {
	g.mu.Lock()
	g.clients[playerID] = client
	g.mu.Unlock()
}

// SetAuthID links an authenticated account to an in-game player
func (g *Game) SetAuthID(playerID int, authID int64) {
	g.mu.Lock()
	if p, ok := g.players[playerID]; ok {
		p.AuthID = authID
	}
	g.mu.Unlock()
}

// RemovePlayer removes a player and their connection. Idempotent: a
// late call for an already-removed id is a no-op. Survivors are
// notified and the match status recomputed.
func (g *Game) RemovePlayer(id int) {
	var restarted bool

	g.mu.Lock()
	if _, ok := g.players[id]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.players, id)
	delete(g.clients, id)
	delete(g.restartVotes, id)

	switch {
	case len(g.players) == 0:
		// Last player gone: nothing left to finish the match, reset
		g.status = StatusWaiting
		g.meteors = make(map[int]*Meteor)
		g.lasers = make(map[int]*Laser)
		g.restartVotes = make(map[int]bool)
	case g.status == StatusFinished:
		// The departed player's pending vote may have been the holdout
		if g.allVotedLocked() {
			g.restartLocked()
			restarted = true
		}
	case g.status != StatusRunning && len(g.players) < g.cfg.MinPlayers:
		g.status = StatusWaiting
	}
	g.mu.Unlock()

	g.broadcastEnvelope(Envelope{T: MsgPlayerLeft, Data: PlayerLeftMsg{ID: id}})
	if restarted {
		g.broadcastEnvelope(Envelope{T: MsgRestarted})
		g.track(EvtMatchStart, 0, "")
	}
	g.broadcastState()
	g.track(EvtPlayerLeave, 0, "")
}

// SetName confirms the player's display name, once
func (g *Game) SetName(id int, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[id]
	if !ok {
		return "", errors.New("unknown player")
	}
	if p.named {
		return "", ErrNameSet
	}
	if name != "" {
		p.Name = name
	}
	p.named = true
	return p.Name, nil
}

// UpdatePosition records the client's reported position. A late message
// for a just-disconnected player is a harmless no-op.
func (g *Game) UpdatePosition(id int, x, y float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[id]
	if !ok {
		return
	}
	p.X = Clamp(x, 0, FieldWidth)
	p.Y = Clamp(y, 0, FieldHeight)
}

// FireShot spawns a laser at the claimed position if the match is
// running and the per-player cooldown has elapsed
func (g *Game) FireShot(ownerID int, x, y float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusRunning {
		return
	}
	p, ok := g.players[ownerID]
	if !ok || !p.CanFire() {
		return
	}
	p.FireCD = FireCooldown

	id := g.nextLaserID
	g.nextLaserID++
	g.lasers[id] = NewLaser(id, ownerID, x, y)
}

// SpawnMeteor injects one meteor while the match is running and at
// least one player is present
func (g *Game) SpawnMeteor() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.status != StatusRunning || len(g.players) == 0 {
		return
	}
	id := g.nextMeteorID
	g.nextMeteorID++
	g.meteors[id] = NewMeteor(id)
}

// StartMatch moves ready -> running on an explicit start signal.
// Returns false if the match was not ready.
func (g *Game) StartMatch() bool {
	g.mu.Lock()
	if g.status != StatusReady {
		g.mu.Unlock()
		return false
	}
	g.startLocked()
	g.mu.Unlock()

	g.broadcastEnvelope(Envelope{T: MsgStarted})
	g.track(EvtMatchStart, 0, "")
	return true
}

// HandleRestart processes a restart message. In the ready state it acts
// as a start signal; in the finished state it records the player's vote
// and restarts once every connected player has voted.
func (g *Game) HandleRestart(playerID int) {
	var started, restarted bool

	g.mu.Lock()
	switch g.status {
	case StatusReady:
		g.startLocked()
		started = true
	case StatusFinished:
		if _, ok := g.players[playerID]; ok {
			g.restartVotes[playerID] = true
			if g.allVotedLocked() {
				g.restartLocked()
				restarted = true
			}
		}
	}
	g.mu.Unlock()

	if started {
		g.broadcastEnvelope(Envelope{T: MsgStarted})
		g.track(EvtMatchStart, 0, "")
	}
	if restarted {
		g.broadcastEnvelope(Envelope{T: MsgRestarted})
		g.broadcastState()
		g.track(EvtMatchStart, 0, "")
	}
}

// ReportHit applies a client-reported meteor hit (trusted-client mode)
func (g *Game) ReportHit(playerID int) {
	g.mu.Lock()
	p, ok := g.players[playerID]
	if !ok {
		g.mu.Unlock()
		return
	}
	p.ApplyHit()
	finished := g.status == StatusRunning && g.allDeadLocked()
	var scores map[int]int
	var results []matchResult
	var duration float64
	if finished {
		scores, results, duration = g.finishLocked()
	}
	g.mu.Unlock()

	g.track(EvtPlayerDeath, 0, "")
	if finished {
		g.emitGameOver(scores, results, duration)
	}
}

// SetScore overrides a player's score (trusted-client mode)
func (g *Game) SetScore(playerID, score int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.players[playerID]; ok {
		p.Score = score
	}
}

// SetLives overrides a player's lives (trusted-client mode), floor zero
func (g *Game) SetLives(playerID, lives int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.players[playerID]; ok {
		if lives < 0 {
			lives = 0
		}
		p.Lives = lives
	}
}

// PlayerCount returns the number of connected players
func (g *Game) PlayerCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.players)
}

// Status returns the current match status
func (g *Game) Status() MatchStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// TrustsClients reports whether client-reported hit/score/lives
// messages are honored
func (g *Game) TrustsClients() bool {
	return g.cfg.TrustClients
}

// Snapshot returns a deep copy of the world state. Serialization and
// network writes always operate on the copy, never under the lock.
func (g *Game) Snapshot() GameSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := GameSnapshot{
		Status:     g.status.String(),
		Players:    make(map[int]PlayerSnapshot, len(g.players)),
		Meteors:    make([]MeteorSnapshot, 0, len(g.meteors)),
		Lasers:     make([]LaserSnapshot, 0, len(g.lasers)),
		NumPlayers: len(g.players),
		Tick:       g.tick,
	}
	for id, p := range g.players {
		snap.Players[id] = p.ToSnapshot()
	}
	for _, m := range g.meteors {
		snap.Meteors = append(snap.Meteors, m.ToSnapshot())
	}
	for _, l := range g.lasers {
		snap.Lasers = append(snap.Lasers, l.ToSnapshot())
	}
	return snap
}

// update runs one simulation tick
func (g *Game) update(dt float64, now time.Time) {
	g.mu.Lock()
	g.tick++
	deaths, kills := 0, 0
	if g.status == StatusRunning {
		deaths, kills = g.step(dt, now)
	}
	finished := g.status == StatusRunning && g.allDeadLocked()
	var scores map[int]int
	var results []matchResult
	var duration float64
	if finished {
		scores, results, duration = g.finishLocked()
	}
	broadcastDue := g.tick%BroadcastEvery == 0
	g.mu.Unlock()

	for i := 0; i < deaths; i++ {
		g.track(EvtPlayerDeath, 0, "")
	}
	for i := 0; i < kills; i++ {
		g.track(EvtMeteorKill, 0, "")
	}
	if finished {
		g.emitGameOver(scores, results, duration)
	}
	if broadcastDue {
		g.broadcastState()
	}
}

// step advances meteors and lasers and resolves collisions. Fixed
// order: meteors move and expire, meteors hit players, lasers move and
// leave the screen, lasers destroy meteors. Returns the number of
// players whose lives reached zero this tick and the number of meteors
// shot down. Caller holds the lock.
func (g *Game) step(dt float64, now time.Time) (int, int) {
	deaths, kills := 0, 0

	for _, p := range g.players {
		if p.FireCD > 0 {
			p.FireCD -= dt
		}
	}

	for id, m := range g.meteors {
		m.Update(dt)
		if m.Expired(now) {
			delete(g.meteors, id)
			continue
		}
		hit := false
		for _, p := range g.players {
			if !p.Alive() {
				continue
			}
			if WithinRadius(m.X, m.Y, p.X, p.Y, MeteorHitRadius) {
				// A meteor overlapping several players hits them all
				p.ApplyHit()
				if !p.Alive() {
					deaths++
				}
				hit = true
			}
		}
		if hit {
			delete(g.meteors, id)
		}
	}

	for id, l := range g.lasers {
		l.Update(dt)
		if l.OffScreen() {
			delete(g.lasers, id)
			continue
		}
		for mid, m := range g.meteors {
			if WithinRadius(l.X, l.Y, m.X, m.Y, LaserHitRadius) {
				if owner, ok := g.players[l.OwnerID]; ok {
					owner.Score += ScorePerMeteor
				}
				delete(g.meteors, mid)
				delete(g.lasers, id)
				kills++
				// one meteor per laser per tick
				break
			}
		}
	}

	return deaths, kills
}

// allDeadLocked reports whether every connected player is out of lives
func (g *Game) allDeadLocked() bool {
	if len(g.players) == 0 {
		return false
	}
	for _, p := range g.players {
		if p.Alive() {
			return false
		}
	}
	return true
}

// allVotedLocked reports whether every connected player has voted restart
func (g *Game) allVotedLocked() bool {
	if len(g.players) == 0 {
		return false
	}
	for id := range g.players {
		if !g.restartVotes[id] {
			return false
		}
	}
	return true
}

// startLocked transitions to running. Caller holds the lock.
func (g *Game) startLocked() {
	g.status = StatusRunning
	g.startedAt = time.Now()
	g.restartVotes = make(map[int]bool)
}

// restartLocked reinitializes all players and clears transient entities
// for a fresh round. Caller holds the lock.
func (g *Game) restartLocked() {
	for _, p := range g.players {
		p.Reset()
	}
	g.meteors = make(map[int]*Meteor)
	g.lasers = make(map[int]*Laser)
	g.startLocked()
}

// finishLocked transitions to finished and collects the results.
// Caller holds the lock.
func (g *Game) finishLocked() (map[int]int, []matchResult, float64) {
	g.status = StatusFinished
	scores := make(map[int]int, len(g.players))
	results := make([]matchResult, 0, len(g.players))
	for id, p := range g.players {
		scores[id] = p.Score
		results = append(results, matchResult{
			AuthID:    p.AuthID,
			Name:      p.Name,
			Score:     p.Score,
			LivesLeft: p.Lives,
		})
	}
	duration := time.Since(g.startedAt).Seconds()
	return scores, results, duration
}

// emitGameOver notifies clients and records the completed match
func (g *Game) emitGameOver(scores map[int]int, results []matchResult, duration float64) {
	g.broadcastEnvelope(Envelope{T: MsgGameOver, Data: GameOverMsg{Scores: scores}})
	g.track(EvtMatchEnd, 0, "")
	if g.db != nil {
		go func() {
			if err := g.db.RecordMatch(duration, results); err != nil {
				log.Printf("record match: %v", err)
			}
		}()
	}
}

// clientList copies the current broadcast targets
func (g *Game) clientList() []Broadcaster {
	g.mu.RLock()
	defer g.mu.RUnlock()
	list := make([]Broadcaster, 0, len(g.clients))
	for _, c := range g.clients {
		list = append(list, c)
	}
	return list
}

// broadcastState serializes one snapshot and pushes it to every client
// as a msgpack binary frame
func (g *Game) broadcastState() {
	snap := g.Snapshot()
	data, err := msgpack.Marshal(snap)
	if err != nil {
		log.Printf("marshal snapshot: %v", err)
		return
	}
	for _, c := range g.clientList() {
		c.SendBinary(data)
	}
}

// broadcastEnvelope marshals a JSON event once and pushes it to every client
func (g *Game) broadcastEnvelope(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("marshal envelope: %v", err)
		return
	}
	for _, c := range g.clientList() {
		if raw, ok := c.(rawSender); ok {
			raw.SendRaw(data)
		} else {
			c.SendJSON(env)
		}
	}
}

// rawSender is implemented by clients that accept pre-marshaled bytes
type rawSender interface {
	SendRaw(data []byte)
}

// track forwards an analytics event when the store is enabled
func (g *Game) track(evtType string, playerID int64, data string) {
	if g.analytics != nil {
		g.analytics.Track(evtType, playerID, data)
	}
}
