package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const createSessionTableSQL = `
CREATE TABLE IF NOT EXISTS session_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// KVStore is a SessionStore backed by a SQLite table
type KVStore struct {
	db   *sql.DB
	path string
}

// OpenDatabase opens (creating if needed) a SQLite database file
func OpenDatabase(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "open", Err: err}
	}
	// One writer at a time keeps SQLite away from SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StorageError{Path: path, Op: "open", Err: fmt.Errorf("database ping failed: %w", err)}
	}

	return db, nil
}

// OpenKVStore opens the session store at path
func OpenKVStore(path string) (*KVStore, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	store, err := NewKVStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.path = path
	return store, nil
}

// NewKVStore wraps an open database, creating the table if needed
func NewKVStore(db *sql.DB) (*KVStore, error) {
	if _, err := db.Exec(createSessionTableSQL); err != nil {
		return nil, &StorageError{Path: "session_kv", Op: "create", Err: err}
	}
	return &KVStore{db: db, path: ":memory:"}, nil
}

// Get returns the value stored under key
func (s *KVStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM session_kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Path: s.path, Op: "read", Err: err}
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value
func (s *KVStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return &StorageError{Path: s.path, Op: "write", Err: err}
	}
	return nil
}

// Delete removes keys in a single transaction
func (s *KVStore) Delete(keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &StorageError{Path: s.path, Op: "delete", Err: err}
	}
	for _, key := range keys {
		if _, err := tx.Exec("DELETE FROM session_kv WHERE key = ?", key); err != nil {
			_ = tx.Rollback()
			return &StorageError{Path: s.path, Op: "delete", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Path: s.path, Op: "delete", Err: err}
	}
	return nil
}

// Keys lists the stored keys
func (s *KVStore) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM session_kv ORDER BY key")
	if err != nil {
		return nil, &StorageError{Path: s.path, Op: "read", Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &StorageError{Path: s.path, Op: "read", Err: fmt.Errorf("scan failed: %w", err)}
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Path: s.path, Op: "read", Err: fmt.Errorf("rows iteration error: %w", err)}
	}
	return keys, nil
}

// Path returns the database file backing the store
func (s *KVStore) Path() string {
	return s.path
}

// Close closes the underlying database
func (s *KVStore) Close() error {
	return s.db.Close()
}
