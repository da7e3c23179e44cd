package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

// startTestServer spins up an httptest.Server with a Hub over a fresh
// Game. The simulation loop is not started; tests drive state changes
// through messages so assertions stay deterministic.
func startTestServer(t *testing.T, cfg MatchConfig) (*httptest.Server, string, *Game) {
	t.Helper()

	game := NewGame(cfg)
	hub := NewHub(game, nil, nil)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(func() {
		srv.Close()
		game.Stop()
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL, game
}

func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	return conn
}

// readEnvelope reads one message. Binary frames are msgpack snapshots
// and get wrapped in a state envelope for uniform handling.
func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if msgType == websocket.BinaryMessage {
		var snap GameSnapshot
		if err := msgpack.Unmarshal(raw, &snap); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		return Envelope{T: MsgState, Data: snap}
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return env
}

// waitFor reads until a message of the wanted type arrives, skipping
// interleaved state frames
func waitFor(t *testing.T, conn *websocket.Conn, msgType string) Envelope {
	t.Helper()
	for i := 0; i < 50; i++ {
		env := readEnvelope(t, conn)
		if env.T == msgType {
			return env
		}
	}
	t.Fatalf("no %q message arrived", msgType)
	return Envelope{}
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	env := Envelope{T: msgType, Data: data}
	raw, _ := json.Marshal(env)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// dataMap extracts the Data field as map[string]interface{}
func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	raw, _ := json.Marshal(env.Data)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	return m
}

// ---------- connection lifecycle ----------

func TestConnectReceivesWelcome(t *testing.T) {
	_, wsURL, _ := startTestServer(t, DefaultMatchConfig())

	c := dialWS(t, wsURL)
	defer c.Close()

	welcome := readEnvelope(t, c)
	if welcome.T != MsgWelcome {
		t.Fatalf("expected welcome, got %s", welcome.T)
	}
	if id := dataMap(t, welcome)["assignedId"].(float64); id != 1 {
		t.Errorf("expected assignedId 1, got %v", id)
	}
}

func TestJoinConfirmsName(t *testing.T) {
	_, wsURL, _ := startTestServer(t, DefaultMatchConfig())

	c := dialWS(t, wsURL)
	defer c.Close()
	_ = readEnvelope(t, c) // welcome

	sendMsg(t, c, MsgJoin, JoinMsg{Username: "Alice"})
	confirmed := waitFor(t, c, MsgNameConfirmed)
	if name := dataMap(t, confirmed)["name"]; name != "Alice" {
		t.Errorf("expected name Alice, got %v", name)
	}
}

func TestSecondJoinRejected(t *testing.T) {
	_, wsURL, _ := startTestServer(t, DefaultMatchConfig())

	c := dialWS(t, wsURL)
	defer c.Close()
	_ = readEnvelope(t, c) // welcome

	sendMsg(t, c, MsgJoin, JoinMsg{Username: "Alice"})
	waitFor(t, c, MsgNameConfirmed)

	sendMsg(t, c, MsgJoin, JoinMsg{Username: "Mallory"})
	errMsg := waitFor(t, c, MsgError)
	if reason := dataMap(t, errMsg)["reason"]; reason == "" {
		t.Error("error should carry a reason")
	}

	// The server closes the connection after the error
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 50; i++ {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
	t.Error("connection should be closed after a rejected join")
}

func TestServerFullRejected(t *testing.T) {
	_, wsURL, _ := startTestServer(t, MatchConfig{MinPlayers: 2, MaxPlayers: 2})

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	_ = readEnvelope(t, c1)
	c2 := dialWS(t, wsURL)
	defer c2.Close()
	_ = readEnvelope(t, c2)

	c3 := dialWS(t, wsURL)
	defer c3.Close()
	errMsg := readEnvelope(t, c3)
	if errMsg.T != MsgError {
		t.Fatalf("expected error for third connection, got %s", errMsg.T)
	}
	if reason := dataMap(t, errMsg)["reason"]; reason != "server full" {
		t.Errorf("expected reason 'server full', got %v", reason)
	}
}

func TestPlayerLeftNotification(t *testing.T) {
	_, wsURL, game := startTestServer(t, DefaultMatchConfig())

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	_ = readEnvelope(t, c1)
	c2 := dialWS(t, wsURL)
	_ = readEnvelope(t, c2)

	c2.Close()
	left := waitFor(t, c1, MsgPlayerLeft)
	if id := dataMap(t, left)["id"].(float64); id != 2 {
		t.Errorf("expected player 2 to leave, got %v", id)
	}

	deadline := time.Now().Add(2 * time.Second)
	for game.PlayerCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if game.PlayerCount() != 1 {
		t.Errorf("expected 1 player after disconnect, got %d", game.PlayerCount())
	}
}

// ---------- state over the wire ----------

func TestHeartbeatReturnsState(t *testing.T) {
	_, wsURL, _ := startTestServer(t, DefaultMatchConfig())

	c := dialWS(t, wsURL)
	defer c.Close()
	_ = readEnvelope(t, c) // welcome

	sendMsg(t, c, MsgHeartbeat, nil)
	state := waitFor(t, c, MsgState)
	d := dataMap(t, state)
	if d["status"] != "waiting" {
		t.Errorf("expected status waiting, got %v", d["status"])
	}
	if d["numPlayers"].(float64) != 1 {
		t.Errorf("expected numPlayers 1, got %v", d["numPlayers"])
	}
}

func TestUpdatePositionReflected(t *testing.T) {
	_, wsURL, _ := startTestServer(t, DefaultMatchConfig())

	c := dialWS(t, wsURL)
	defer c.Close()
	welcome := readEnvelope(t, c)
	id := dataMap(t, welcome)["assignedId"].(float64)

	sendMsg(t, c, MsgUpdatePosition, PositionMsg{X: 321, Y: 654})
	sendMsg(t, c, MsgHeartbeat, nil)
	state := waitFor(t, c, MsgState)

	players := dataMap(t, state)["players"].(map[string]interface{})
	me := players[jsonKey(id)].(map[string]interface{})
	if me["x"].(float64) != 321 || me["y"].(float64) != 654 {
		t.Errorf("expected position (321, 654), got (%v, %v)", me["x"], me["y"])
	}
}

// jsonKey formats a numeric player id the way JSON objects key it
func jsonKey(id float64) string {
	raw, _ := json.Marshal(int(id))
	return string(raw)
}

func TestStartGameBroadcast(t *testing.T) {
	_, wsURL, game := startTestServer(t, DefaultMatchConfig())

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	_ = readEnvelope(t, c1)
	c2 := dialWS(t, wsURL)
	defer c2.Close()
	_ = readEnvelope(t, c2)

	sendMsg(t, c1, MsgStartGame, nil)
	waitFor(t, c1, MsgStarted)
	waitFor(t, c2, MsgStarted)

	if game.Status() != StatusRunning {
		t.Errorf("expected running, got %v", game.Status())
	}
}

func TestBinarySnapshotBroadcast(t *testing.T) {
	_, wsURL, game := startTestServer(t, DefaultMatchConfig())
	go game.Run()

	c := dialWS(t, wsURL)
	defer c.Close()
	_ = readEnvelope(t, c) // welcome

	state := waitFor(t, c, MsgState)
	snap, ok := state.Data.(GameSnapshot)
	if !ok {
		t.Fatalf("expected a binary snapshot, got %T", state.Data)
	}
	if snap.NumPlayers != 1 {
		t.Errorf("expected numPlayers 1, got %d", snap.NumPlayers)
	}
	if snap.Status != "waiting" {
		t.Errorf("expected status waiting, got %s", snap.Status)
	}
	if _, ok := snap.Players[1]; !ok {
		t.Error("snapshot should contain player 1")
	}
}

// ---------- HTTP surface ----------

func TestQRCodeEndpoint(t *testing.T) {
	srv, _, _ := startTestServer(t, DefaultMatchConfig())

	resp, err := http.Get(srv.URL + "/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("GET /qr status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Error("response should be a PNG image")
	}
}

func TestHealthzEndpoint(t *testing.T) {
	srv, wsURL, _ := startTestServer(t, DefaultMatchConfig())

	c := dialWS(t, wsURL)
	defer c.Close()
	_ = readEnvelope(t, c)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var health map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&health)
	if health["status"] != "waiting" {
		t.Errorf("expected status waiting, got %v", health["status"])
	}
	if health["players"].(float64) != 1 {
		t.Errorf("expected 1 player, got %v", health["players"])
	}
}

func TestStartEndpoint(t *testing.T) {
	srv, wsURL, game := startTestServer(t, DefaultMatchConfig())

	// Starting before the match is ready is rejected
	resp, err := http.Post(srv.URL+"/start", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 while waiting, got %d", resp.StatusCode)
	}

	c1 := dialWS(t, wsURL)
	defer c1.Close()
	_ = readEnvelope(t, c1)
	c2 := dialWS(t, wsURL)
	defer c2.Close()
	_ = readEnvelope(t, c2)

	resp, err = http.Post(srv.URL+"/start", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if game.Status() != StatusRunning {
		t.Errorf("expected running, got %v", game.Status())
	}
}

// ---------- auth over the wire ----------

func TestRegisterOverWebSocket(t *testing.T) {
	game := NewGame(DefaultMatchConfig())
	db := openTestDB(t)
	hub := NewHub(game, db, NewAuth(db))
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(func() {
		srv.Close()
		game.Stop()
	})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	c := dialWS(t, wsURL)
	defer c.Close()
	_ = readEnvelope(t, c) // welcome

	sendMsg(t, c, MsgRegister, RegisterMsg{Username: "pilot", Password: "secret"})
	authOK := waitFor(t, c, MsgAuthOK)
	d := dataMap(t, authOK)
	if d["username"] != "pilot" {
		t.Errorf("expected username pilot, got %v", d["username"])
	}
	token, _ := d["token"].(string)
	if token == "" {
		t.Fatal("expected a token")
	}

	// A second connection can resume with the token
	c2 := dialWS(t, wsURL)
	defer c2.Close()
	_ = readEnvelope(t, c2)
	sendMsg(t, c2, MsgAuth, AuthMsg{Token: token})
	authOK2 := waitFor(t, c2, MsgAuthOK)
	if dataMap(t, authOK2)["username"] != "pilot" {
		t.Error("token auth should restore the account")
	}
}

func TestAuthUnavailableWithoutStore(t *testing.T) {
	_, wsURL, _ := startTestServer(t, DefaultMatchConfig())

	c := dialWS(t, wsURL)
	defer c.Close()
	_ = readEnvelope(t, c)

	sendMsg(t, c, MsgRegister, RegisterMsg{Username: "pilot", Password: "secret"})
	errMsg := waitFor(t, c, MsgError)
	if errMsg.T != MsgError {
		t.Fatal("register without a database should report an error")
	}
}
