package db

import (
	"path/filepath"
	"testing"
)

func checkPragmas(t *testing.T, db *DB) {
	t.Helper()

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout=5000, got %d", busyTimeout)
	}

	var synchronous int
	if err := db.QueryRow("PRAGMA synchronous").Scan(&synchronous); err != nil {
		t.Fatalf("Failed to query synchronous: %v", err)
	}
	if synchronous != 1 { // 1 = NORMAL
		t.Errorf("Expected synchronous=1 (NORMAL), got %d", synchronous)
	}

	var tempStore int
	if err := db.QueryRow("PRAGMA temp_store").Scan(&tempStore); err != nil {
		t.Fatalf("Failed to query temp_store: %v", err)
	}
	if tempStore != 2 { // 2 = MEMORY
		t.Errorf("Expected temp_store=2 (MEMORY), got %d", tempStore)
	}
}

func TestPragmasApplied(t *testing.T) {
	db := setupTestDB(t)
	checkPragmas(t, db)
}

// Reopening an existing database must reapply the per-connection
// pragmas; only journal_mode persists in the file.
func TestPragmasAppliedToExistingDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pragmas_test.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := db.MigrateUp(migrationsDir); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	db.Close()

	reopened, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer reopened.Close()

	checkPragmas(t, reopened)
}
