package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations[v] upgrades a database at user_version v to v+1.
var migrations = []string{
	schemaSQL, // send_queue, send_events, state_checkpoints
}

// Store keeps the send queue, its event log and engine checkpoints in one
// SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating it if needed, and migrates it to
// the current schema. Opening an already migrated database changes nothing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers, so conditional claims never
	// race inside this process and SQLITE_BUSY only comes from other ones.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// dataSourceName sets the connection pragmas through go-sqlite3 DSN
// parameters: WAL journal, NORMAL sync, 5s busy timeout, foreign keys.
func dataSourceName(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "1")
	return path + "?" + params.Encode()
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		if err := applyMigration(db, v); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, from int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %d: begin tx: %w", from+1, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.Exec(migrations[from]); err != nil {
		return fmt.Errorf("migration %d: %w", from+1, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", from+1)); err != nil {
		return fmt.Errorf("migration %d: set user_version: %w", from+1, err)
	}
	return tx.Commit()
}
