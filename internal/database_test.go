package internal

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/iksnae/justchat/testutil"
)

func TestOpenKVStore(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) string
		wantErr bool
	}{
		{
			name: "existing database",
			setup: func(t *testing.T) string {
				return testutil.CreateSessionDB(t, map[string]string{"auth_token": "tok"})
			},
		},
		{
			name: "fresh database in new directory",
			setup: func(t *testing.T) string {
				return filepath.Join(testutil.CreateTempDir(t), "nested", "session.db")
			},
		},
		{
			name: "parent is a file",
			setup: func(t *testing.T) string {
				dir := testutil.CreateTempDir(t)
				file := testutil.CreateFileFixture(t, dir, "blocker", []byte("x"))
				return filepath.Join(file, "session.db")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.setup(t)
			store, err := OpenKVStore(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenKVStore() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var serr *StorageError
				if !errors.As(err, &serr) {
					t.Errorf("OpenKVStore() error = %T, want *StorageError", err)
				}
				return
			}
			defer store.Close()
			if store.Path() != path {
				t.Errorf("Path() = %q, want %q", store.Path(), path)
			}
		})
	}
}

func TestKVStoreRoundTrip(t *testing.T) {
	store, err := NewKVStore(testutil.CreateInMemoryDB(t))
	if err != nil {
		t.Fatalf("NewKVStore() error = %v", err)
	}

	if _, ok, err := store.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v err %v, want absent", ok, err)
	}

	if err := store.Set("a", "1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set("a", "2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if err := store.Set("b", "3"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := store.Get("a")
	if err != nil || !ok || got != "2" {
		t.Errorf("Get(a) = %q, %v, %v; want 2", got, ok, err)
	}

	keys, err := store.Keys()
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys() = %v", keys)
	}

	if err := store.Delete("a", "b", "never-set"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	keys, _ = store.Keys()
	if len(keys) != 0 {
		t.Errorf("Keys() after delete = %v", keys)
	}
}

func TestKVStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(testutil.CreateTempDir(t), "session.db")
	store, err := OpenKVStore(path)
	if err != nil {
		t.Fatalf("OpenKVStore() error = %v", err)
	}
	if err := store.Set(SessionTokenKey, "tok"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	store.Close()

	reopened, err := OpenKVStore(path)
	if err != nil {
		t.Fatalf("OpenKVStore() reopen error = %v", err)
	}
	defer reopened.Close()
	got, ok, err := reopened.Get(SessionTokenKey)
	if err != nil || !ok || got != "tok" {
		t.Errorf("Get() after reopen = %q, %v, %v", got, ok, err)
	}
}
