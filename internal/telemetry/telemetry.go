// Package telemetry persists operational history only — connection
// lifecycle and periodic counter snapshots — never the order book, Orders,
// or Events themselves. Persistence/replay of the book is out of scope
// (§1); this is purely an operator-facing audit trail, grounded on the
// same modernc.org/sqlite + database/sql idiom the rest of the pack uses
// for its own persistence layer.
package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding operational history.
type Store struct {
	db *sql.DB
}

// Open creates or reuses the database at path and ensures its schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		client_id   INTEGER PRIMARY KEY,
		remote_addr TEXT NOT NULL,
		decoder_kind TEXT NOT NULL,
		connected_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		disconnected_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS stats_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		taken_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		requests_received INTEGER NOT NULL,
		events_generated  INTEGER NOT NULL,
		sessions_connected INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("telemetry: init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordConnect logs a new session's arrival, including which wire codec it
// sniffed at connect time ("csv" or "binary").
func (s *Store) RecordConnect(clientID uint64, remoteAddr, decoderKind string) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (client_id, remote_addr, decoder_kind) VALUES (?, ?, ?)`,
		clientID, remoteAddr, decoderKind,
	)
	if err != nil {
		return fmt.Errorf("telemetry: record connect: %w", err)
	}
	return nil
}

// RecordDisconnect timestamps a session's departure.
func (s *Store) RecordDisconnect(clientID uint64) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET disconnected_at = ? WHERE client_id = ? AND disconnected_at IS NULL`,
		time.Now(), clientID,
	)
	if err != nil {
		return fmt.Errorf("telemetry: record disconnect: %w", err)
	}
	return nil
}

// Snapshot is one row of aggregate counters at a point in time.
type Snapshot struct {
	RequestsReceived  uint64
	EventsGenerated   uint64
	SessionsConnected int
}

// RecordSnapshot persists one periodic counter snapshot.
func (s *Store) RecordSnapshot(snap Snapshot) error {
	_, err := s.db.Exec(
		`INSERT INTO stats_snapshots (requests_received, events_generated, sessions_connected) VALUES (?, ?, ?)`,
		snap.RequestsReceived, snap.EventsGenerated, snap.SessionsConnected,
	)
	if err != nil {
		return fmt.Errorf("telemetry: record snapshot: %w", err)
	}
	return nil
}
