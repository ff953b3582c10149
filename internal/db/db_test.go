package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/shelf/internal/config"
)

func TestInit(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	// Verify database file was created
	dbPath := filepath.Join(tmpDir, "shelf.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file not created at %s", dbPath)
	}

	// Verify WAL mode is active
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}

	for _, table := range []string{"entries", "children"} {
		var name string
		err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table not found: %v", table, err)
		}
	}
}

func TestInit_CreatesDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	baseDir := filepath.Join(tmpDir, "nested", "path", ".shelf")

	db, err := Init(baseDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		t.Errorf("base directory not created at %s", baseDir)
	}
}

func TestInit_MigratesToLatest(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		db, err := Init(dir)
		if err != nil {
			t.Fatalf("Init #%d: %v", i+1, err)
		}
		version, err := GetUserVersion(db)
		db.Close()
		if err != nil {
			t.Fatalf("GetUserVersion: %v", err)
		}
		if version != CurrentSchemaVersion || version != len(migrations) {
			t.Errorf("Init #%d: user_version = %d, want %d", i+1, version, len(migrations))
		}
	}
}

func TestInit_RejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	db, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := SetUserVersion(db, CurrentSchemaVersion+1); err != nil {
		t.Fatalf("SetUserVersion: %v", err)
	}
	db.Close()

	if _, err := Init(dir); err == nil || !strings.Contains(err.Error(), "newer than this binary") {
		t.Errorf("Init on a newer schema: err = %v", err)
	}
}

func TestInit_SchemaIndexes(t *testing.T) {
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	indexes := []string{
		"idx_entries_scope",
		"idx_entries_deleted",
		"idx_children_parent",
		"idx_children_deleted",
	}
	for _, idx := range indexes {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&name)
		if err != nil {
			t.Errorf("index %s not found: %v", idx, err)
		}
	}
}

func TestConfigurePool(t *testing.T) {
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	ConfigurePool(db, nil)
	ConfigurePool(db, &config.Config{DBMaxOpenConns: 3, DBMaxIdleConns: 1})

	if got := db.Stats().MaxOpenConnections; got != 3 {
		t.Errorf("MaxOpenConnections = %d, want 3", got)
	}
}
