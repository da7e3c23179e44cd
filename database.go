package main

import (
	"database/sql"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database for match history and accounts. Live
// world state is never persisted; only completed-match results land here.
type DB struct {
	conn *sql.DB
}

// PlayerRow represents a player record in the database
type PlayerRow struct {
	ID        int64
	Username  string
	PassHash  string
	IsGuest   bool
	CreatedAt time.Time
}

// StatsRow represents lifetime player stats
type StatsRow struct {
	PlayerID int64
	Meteors  int // meteors destroyed
	Matches  int
	Playtime float64 // seconds
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		is_guest INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		player_id INTEGER PRIMARY KEY REFERENCES players(id),
		meteors INTEGER NOT NULL DEFAULT 0,
		matches INTEGER NOT NULL DEFAULT 0,
		playtime REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		duration REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id INTEGER NOT NULL REFERENCES matches(id),
		player_id INTEGER NOT NULL REFERENCES players(id),
		score INTEGER NOT NULL DEFAULT 0,
		lives_left INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, player_id)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		player_id INTEGER NOT NULL DEFAULT 0,
		data TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_match_players_player ON match_players(player_id);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// CreatePlayer creates a new player account (returns player ID)
func (db *DB) CreatePlayer(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO players (username, pass_hash) VALUES (?, ?)",
		username, passHash,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	_, err = db.conn.Exec("INSERT INTO stats (player_id) VALUES (?)", id)
	return id, err
}

// CreateGuest creates a guest player (no password)
func (db *DB) CreateGuest(username string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO players (username, is_guest) VALUES (?, 1)",
		username,
	)
	if err != nil {
		// Guest display names collide across matches; retry with a
		// generated one
		res, err = db.conn.Exec(
			"INSERT INTO players (username, is_guest) VALUES (?, 1)",
			GenerateGuestName(),
		)
		if err != nil {
			return 0, err
		}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	_, err = db.conn.Exec("INSERT INTO stats (player_id) VALUES (?)", id)
	return id, err
}

// GetPlayerByUsername returns a player by username, nil when absent
func (db *DB) GetPlayerByUsername(username string) (*PlayerRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, is_guest, created_at FROM players WHERE username = ?",
		username,
	)
	p := &PlayerRow{}
	err := row.Scan(&p.ID, &p.Username, &p.PassHash, &p.IsGuest, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// UsernameExists checks whether a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM players WHERE username = ?", username).Scan(&n)
	return n > 0, err
}

// GetStats returns lifetime stats, nil when absent
func (db *DB) GetStats(playerID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(
		"SELECT player_id, meteors, matches, playtime FROM stats WHERE player_id = ?",
		playerID,
	)
	s := &StatsRow{}
	err := row.Scan(&s.PlayerID, &s.Meteors, &s.Matches, &s.Playtime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// GetSetting returns a settings value, "" when absent
func (db *DB) GetSetting(key string) string {
	var v string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if err != nil {
		return ""
	}
	return v
}

// SetSetting upserts a settings value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// RecordMatch stores a completed match and updates lifetime stats.
// Guests get a throwaway player row so the match rows stay consistent.
func (db *DB) RecordMatch(duration float64, results []matchResult) error {
	res, err := db.conn.Exec("INSERT INTO matches (duration) VALUES (?)", duration)
	if err != nil {
		return err
	}
	matchID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, r := range results {
		playerID := r.AuthID
		if playerID == 0 {
			playerID, err = db.CreateGuest(r.Name)
			if err != nil {
				log.Printf("create guest %q: %v", r.Name, err)
				continue
			}
		}
		if _, err := db.conn.Exec(
			"INSERT INTO match_players (match_id, player_id, score, lives_left) VALUES (?, ?, ?, ?)",
			matchID, playerID, r.Score, r.LivesLeft,
		); err != nil {
			return err
		}
		if _, err := db.conn.Exec(
			"UPDATE stats SET meteors = meteors + ?, matches = matches + 1, playtime = playtime + ? WHERE player_id = ?",
			r.Score/ScorePerMeteor, duration, playerID,
		); err != nil {
			return err
		}
	}
	return nil
}

// InsertEvents writes a batch of analytics events in one transaction
func (db *DB) InsertEvents(events []AnalyticsEvent) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO events (type, player_id, data, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(e.Type, e.PlayerID, e.Data, e.Timestamp); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
