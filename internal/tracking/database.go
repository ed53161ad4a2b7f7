package tracking

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

const memoryPath = ":memory:"

// NewDatabase opens the SQLite database at dbPath and applies the schema
func NewDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != memoryPath {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// pragmas are per connection and a second :memory: connection is a different database
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return db, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
-- One row per playback
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT    PRIMARY KEY,
    started_at    INTEGER NOT NULL,
    ended_at      INTEGER,
    location      TEXT    NOT NULL,
    format        TEXT    NOT NULL DEFAULT '',
    sink          TEXT    NOT NULL DEFAULT '',
    samples       INTEGER NOT NULL DEFAULT 0 CHECK (samples >= 0),
    frames        INTEGER NOT NULL DEFAULT 0 CHECK (frames >= 0),
    decode_errors INTEGER NOT NULL DEFAULT 0 CHECK (decode_errors >= 0),
    result        TEXT    NOT NULL DEFAULT ''
);

-- Status events raised during a playback
CREATE TABLE IF NOT EXISTS status_events (
    id            INTEGER PRIMARY KEY,
    session_id    TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    timestamp     INTEGER NOT NULL,
    code          TEXT    NOT NULL,
    message       TEXT    NOT NULL DEFAULT '',
    attempt       INTEGER NOT NULL DEFAULT 0 CHECK (attempt >= 0),
    decoder_code  INTEGER NOT NULL DEFAULT 0,
    stream_offset INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON status_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_session ON status_events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_code ON status_events(code);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
