package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	addr := flag.String("addr", ":5555", "HTTP listen address")
	minPlayers := flag.Int("min-players", 2, "players required before the match is ready")
	maxPlayers := flag.Int("max-players", 4, "player slot limit (2-4)")
	autoStart := flag.Bool("autostart", false, "start automatically when min-players is reached")
	trustClients := flag.Bool("trust-clients", false, "accept client-reported hit/score/lives messages")
	dbPath := flag.String("db", "", "SQLite path for match history (empty = disabled)")
	flag.Parse()

	cfg := MatchConfig{
		MinPlayers:   *minPlayers,
		MaxPlayers:   *maxPlayers,
		AutoStart:    *autoStart,
		TrustClients: *trustClients,
	}
	game := NewGame(cfg)

	var db *DB
	var auth *Auth
	var analytics *Analytics
	if *dbPath != "" {
		var err error
		db, err = OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer db.Close()
		auth = NewAuth(db)
		analytics = NewAnalytics(db)
		defer analytics.Stop()
		game.SetStore(db, analytics)
	}

	hub := NewHub(game, db, auth)
	go hub.Run()
	go game.Run()
	go game.RunSpawner()

	mux := SetupRoutes(hub)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("Server starting on %s (players %d-%d, autostart=%v, trust-clients=%v)",
			*addr, cfg.MinPlayers, cfg.MaxPlayers, cfg.AutoStart, cfg.TrustClients)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	game.Stop()
	server.Close()
}
