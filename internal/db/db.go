// Package db provides the SQLite connection and schema for irlightd.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Fixture snapshots - versioned JSON assumed-state, seeded back on restart
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS fixture_state (
			kind TEXT NOT NULL,
			id TEXT NOT NULL,
			payload TEXT NOT NULL,
			version INTEGER DEFAULT 1,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, id)
		);
		CREATE INDEX IF NOT EXISTS idx_fixture_state_kind ON fixture_state(kind);
	`)
	if err != nil {
		return fmt.Errorf("failed to create fixture_state table: %w", err)
	}

	// Command ledger - append-only audit of dispatched command bursts
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS command_ledger (
			id TEXT PRIMARY KEY,
			fixture TEXT NOT NULL,
			command TEXT NOT NULL,
			count INTEGER NOT NULL,
			sent INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_fixture_ts ON command_ledger(fixture, timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_ts ON command_ledger(timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create command_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
