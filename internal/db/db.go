// Package db persists session lifecycle events to a SQLite database
// in the runtime directory, shared by all sessions of the user.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection and provides event logging methods.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode so a status command can read while an attach writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_session_events_identity ON session_events(identity);
	CREATE INDEX IF NOT EXISTS idx_session_events_timestamp ON session_events(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SessionEvent is one recorded lifecycle event of a session.
type SessionEvent struct {
	ID        int64
	Identity  string
	EventType string
	Details   string
	Timestamp time.Time
}

// LogSessionEvent records a lifecycle event for the given session
// identity.
func (db *DB) LogSessionEvent(identity, eventType, details string) error {
	_, err := db.conn.Exec(
		"INSERT INTO session_events (identity, event_type, details) VALUES (?, ?, ?)",
		identity, eventType, details,
	)
	if err != nil {
		return fmt.Errorf("failed to log session event: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent events for a session identity,
// newest first.
func (db *DB) RecentEvents(identity string, limit int) ([]SessionEvent, error) {
	rows, err := db.conn.Query(
		"SELECT id, identity, event_type, details, timestamp FROM session_events WHERE identity = ? ORDER BY id DESC LIMIT ?",
		identity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var e SessionEvent
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.Identity, &e.EventType, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan session event: %w", err)
		}
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}
