package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120 // 60Hz position updates plus actions
	maxNameLen        = 16
)

// Client represents one WebSocket session: the full lifetime of a
// connection from accept to disconnect
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	playerID   int
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
	// Auth state
	authPlayerID int64  // 0 = unauthenticated/guest
	authUsername string // "" = unauthenticated
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection. A read error
// or disconnect ends the session; the player is removed from the world
// and survivors keep playing.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF marker byte so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleMessage dispatches one inbound envelope. A malformed message is
// discarded and logged; the session continues.
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("player %d: malformed message: %v", c.playerID, err)
		return
	}

	switch env.T {
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgUpdatePosition:
		c.handlePosition(env.D)
	case MsgFireShot:
		c.handleFire(env.D)
	case MsgHit:
		c.handleHit()
	case MsgUpdateScore:
		c.handleScore(env.D)
	case MsgUpdateLives:
		c.handleLives(env.D)
	case MsgStartGame:
		c.hub.game.StartMatch()
	case MsgRestart:
		c.hub.game.HandleRestart(c.playerID)
	case MsgHeartbeat:
		c.SendJSON(Envelope{T: MsgState, Data: c.hub.game.Snapshot()})
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	default:
		log.Printf("player %d: unknown message type %q", c.playerID, env.T)
	}
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("player %d: malformed join: %v", c.playerID, err)
		return
	}
	name := msg.Username
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}

	confirmed, err := c.hub.game.SetName(c.playerID, name)
	if err != nil {
		// Name confirmation failure closes the session
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		c.conn.Close()
		return
	}
	c.SendJSON(Envelope{T: MsgNameConfirmed, Data: NameConfirmedMsg{Name: confirmed}})
}

func (c *Client) handlePosition(data json.RawMessage) {
	var msg PositionMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("player %d: malformed position: %v", c.playerID, err)
		return
	}
	c.hub.game.UpdatePosition(c.playerID, msg.X, msg.Y)
}

func (c *Client) handleFire(data json.RawMessage) {
	var msg FireMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("player %d: malformed fire: %v", c.playerID, err)
		return
	}
	c.hub.game.FireShot(c.playerID, msg.X, msg.Y)
}

func (c *Client) handleHit() {
	if !c.hub.game.TrustsClients() {
		log.Printf("player %d: ignored client-reported hit (server authoritative)", c.playerID)
		return
	}
	c.hub.game.ReportHit(c.playerID)
}

func (c *Client) handleScore(data json.RawMessage) {
	if !c.hub.game.TrustsClients() {
		log.Printf("player %d: ignored client-reported score (server authoritative)", c.playerID)
		return
	}
	var msg ScoreMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("player %d: malformed score: %v", c.playerID, err)
		return
	}
	c.hub.game.SetScore(c.playerID, msg.Score)
}

func (c *Client) handleLives(data json.RawMessage) {
	if !c.hub.game.TrustsClients() {
		log.Printf("player %d: ignored client-reported lives (server authoritative)", c.playerID)
		return
	}
	var msg LivesMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("player %d: malformed lives: %v", c.playerID, err)
		return
	}
	c.hub.game.SetLives(c.playerID, msg.Lives)
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "accounts are not enabled"}})
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.setAuth(id, msg.Username, token)
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "accounts are not enabled"}})
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.setAuth(id, msg.Username, token)
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "accounts are not enabled"}})
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "invalid token"}})
		return
	}
	c.setAuth(id, username, msg.Token)
}

func (c *Client) setAuth(id int64, username, token string) {
	c.authPlayerID = id
	c.authUsername = username
	c.hub.game.SetAuthID(c.playerID, id)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    token,
		Username: username,
		PlayerID: id,
	}})
}
