// Package db is the embedded SQLite backend. Owner isolation is applied by the
// caller binding: every query carries the owner id the Store was opened for.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/shelf/internal/config"
	_ "modernc.org/sqlite"
)

// migrations holds the schema steps in order. Step i moves user_version
// from i to i+1; append new steps, never edit applied ones.
var migrations = []string{
	schemaEntriesAndChildren,
}

// CurrentSchemaVersion is the latest schema version.
var CurrentSchemaVersion = len(migrations)

// Init initializes the SQLite database at baseDir/shelf.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.shelf.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "shelf.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies every step above the stored user_version. Each step and
// its version bump commit together, so a failed step leaves the previous
// version in place.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}
	if version > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this binary (%d)", version, len(migrations))
	}

	for next := version; next < len(migrations); next++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: begin: %w", next+1, err)
		}
		if _, err := tx.Exec(migrations[next]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", next+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", next+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: set user_version: %w", next+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", next+1, err)
		}
	}
	return nil
}

const schemaEntriesAndChildren = `
CREATE TABLE IF NOT EXISTS entries (
  id              TEXT PRIMARY KEY,
  owner_id        TEXT NOT NULL,
  space_id        TEXT NOT NULL,
  kind            TEXT NOT NULL CHECK (kind IN ('note', 'tasklist', 'list')),
  title           TEXT NOT NULL DEFAULT '',
  body            TEXT NOT NULL DEFAULT '',
  style           TEXT NOT NULL DEFAULT '',
  sort_order      INTEGER NOT NULL,
  total_count     INTEGER NOT NULL DEFAULT 0 CHECK (total_count >= 0),
  completed_count INTEGER NOT NULL DEFAULT 0 CHECK (completed_count >= 0),
  created_at      INTEGER NOT NULL,
  updated_at      INTEGER NOT NULL,
  deleted_at      INTEGER
);

CREATE INDEX IF NOT EXISTS idx_entries_scope
ON entries(owner_id, space_id, kind, sort_order, id)
WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_entries_deleted
ON entries(owner_id, deleted_at)
WHERE deleted_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS children (
  id          TEXT PRIMARY KEY,
  owner_id    TEXT NOT NULL,
  parent_id   TEXT NOT NULL,
  kind        TEXT NOT NULL CHECK (kind IN ('task', 'item')),
  text        TEXT NOT NULL,
  done        INTEGER NOT NULL DEFAULT 0,
  sort_order  INTEGER NOT NULL,
  created_at  INTEGER NOT NULL,
  updated_at  INTEGER NOT NULL,
  deleted_at  INTEGER
);

CREATE INDEX IF NOT EXISTS idx_children_parent
ON children(owner_id, parent_id, sort_order, id)
WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_children_deleted
ON children(owner_id, deleted_at)
WHERE deleted_at IS NOT NULL;
`

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
