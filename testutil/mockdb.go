package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const createSessionTableSQL = `
CREATE TABLE IF NOT EXISTS session_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// CreateInMemoryDB creates an in-memory SQLite database for testing
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	// Every pooled connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createSessionTableSQL); err != nil {
		db.Close()
		t.Fatalf("Failed to create session_kv table: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// CreateSessionDB creates a session database file holding the given entries
// and returns its path
func CreateSessionDB(t *testing.T, entries map[string]string) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "session.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(createSessionTableSQL); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	for key, value := range entries {
		InsertSessionValue(t, db, key, value)
	}
	return dbPath
}

// InsertSessionValue inserts a key/value pair into the session table
func InsertSessionValue(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	insertSQL := "INSERT OR REPLACE INTO session_kv (key, value, updated_at) VALUES (?, ?, ?)"
	if _, err := db.Exec(insertSQL, key, value, time.Now().UnixMilli()); err != nil {
		t.Fatalf("Failed to insert session value: %v", err)
	}
}
