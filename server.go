package main

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket endpoint: one session per client
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		// Allocate the player slot before anything else; a full server
		// gets an explicit error message, then the connection closes.
		playerID, err := hub.game.AddPlayer()
		if err != nil {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "server full"}})
			conn.Close()
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		client.playerID = playerID
		hub.register <- client

		// Welcome is queued first so the client learns its id before
		// any state frame arrives
		client.SendJSON(Envelope{T: MsgWelcome, Data: WelcomeMsg{ID: playerID}})
		hub.game.SetClient(playerID, client)

		go client.WritePump()
		go client.ReadPump()

		log.Printf("player %d connected from %s (%d/%d)",
			playerID, ip, hub.game.PlayerCount(), hub.game.cfg.MaxPlayers)
	})

	// Join QR code: encodes the WebSocket URL so a phone can connect
	mux.HandleFunc("/qr", func(w http.ResponseWriter, r *http.Request) {
		target := "ws://" + r.Host + "/ws"
		png, err := qrcode.Encode(target, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "qr encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	// Operator control surface: start the match and inspect status
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !hub.game.StartMatch() {
			http.Error(w, "match is not ready", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  hub.game.Status().String(),
			"players": hub.game.PlayerCount(),
		})
	})

	return mux
}
