package internal

import (
	"encoding/json"
	"errors"
	"testing"
)

// memStore is a SessionStore held in memory
type memStore struct {
	values    map[string]string
	setErr    error
	failKey   string
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (m *memStore) Get(key string) (string, bool, error) {
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStore) Set(key, value string) error {
	if m.setErr != nil && (m.failKey == "" || m.failKey == key) {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *memStore) Delete(keys ...string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestLoadSession(t *testing.T) {
	identity, _ := json.Marshal(User{ID: "u1", Username: "kerem"})

	tests := []struct {
		name     string
		values   map[string]string
		wantID   string
		wantAuth bool
	}{
		{name: "empty store", values: map[string]string{}},
		{name: "token and identity", values: map[string]string{SessionTokenKey: "tok", SessionIdentityKey: string(identity)}, wantID: "u1", wantAuth: true},
		{name: "token without identity", values: map[string]string{SessionTokenKey: "tok"}},
		{name: "identity without token", values: map[string]string{SessionIdentityKey: string(identity)}},
		{name: "corrupt identity", values: map[string]string{SessionTokenKey: "tok", SessionIdentityKey: "{not json"}},
		{name: "identity without id", values: map[string]string{SessionTokenKey: "tok", SessionIdentityKey: `{"username":"x"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			for k, v := range tt.values {
				store.values[k] = v
			}
			s := LoadSession(store)
			id, ok := s.CurrentUserID()
			if ok != tt.wantAuth || id != tt.wantID {
				t.Errorf("CurrentUserID() = %q, %v; want %q, %v", id, ok, tt.wantID, tt.wantAuth)
			}
			if s.IsAuthenticated() != tt.wantAuth {
				t.Errorf("IsAuthenticated() = %v", s.IsAuthenticated())
			}
		})
	}
}

func TestLoadSessionNilStore(t *testing.T) {
	s := LoadSession(nil)
	if s.IsAuthenticated() {
		t.Error("session without store should be unauthenticated")
	}
	if err := s.Set("tok", User{ID: "u1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if id, ok := s.CurrentUserID(); !ok || id != "u1" {
		t.Errorf("CurrentUserID() = %q, %v", id, ok)
	}
}

func TestSessionSetAndClear(t *testing.T) {
	store := newMemStore()
	s := LoadSession(store)

	if err := s.Set("tok", User{ID: "u1", Name: "Kerem"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	token, ok := s.Token()
	if !ok || token != "tok" {
		t.Errorf("Token() = %q, %v", token, ok)
	}
	ident, ok := s.Identity()
	if !ok || ident.DisplayName() != "Kerem" {
		t.Errorf("Identity() = %+v, %v", ident, ok)
	}

	// A new session over the same store sees the persisted state
	restored := LoadSession(store)
	if id, ok := restored.CurrentUserID(); !ok || id != "u1" {
		t.Errorf("restored CurrentUserID() = %q, %v", id, ok)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if s.IsAuthenticated() {
		t.Error("session should be cleared")
	}
	if len(store.values) != 0 {
		t.Errorf("store should be empty after Clear(), got %v", store.values)
	}
	if LoadSession(store).IsAuthenticated() {
		t.Error("cleared session must not be restored")
	}
}

func TestSessionSetValidation(t *testing.T) {
	s := LoadSession(newMemStore())
	if err := s.Set("", User{ID: "u1"}); !errors.Is(err, ErrValidationRejected) {
		t.Errorf("Set() without token error = %v", err)
	}
	if err := s.Set("tok", User{}); !errors.Is(err, ErrValidationRejected) {
		t.Errorf("Set() without identity id error = %v", err)
	}
}

func TestSessionSetStoreFailure(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("disk full")
	store.failKey = SessionTokenKey

	s := LoadSession(store)
	if err := s.Set("tok", User{ID: "u1"}); err == nil {
		t.Fatal("Set() should surface store failure")
	}
	if s.IsAuthenticated() {
		t.Error("failed Set() must not leave a half-initialized session")
	}
	if _, ok := store.values[SessionIdentityKey]; ok {
		t.Error("identity written before the failure should be rolled back")
	}
}

func TestSessionClearStoreFailure(t *testing.T) {
	store := newMemStore()
	s := LoadSession(store)
	if err := s.Set("tok", User{ID: "u1"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	store.deleteErr = errors.New("locked")
	if err := s.Clear(); err == nil {
		t.Error("Clear() should report store failure")
	}
	if s.IsAuthenticated() {
		t.Error("in-memory session must be cleared even when the store fails")
	}
}
