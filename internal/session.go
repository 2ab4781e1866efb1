package internal

import (
	"encoding/json"
	"errors"
	"sync"
)

// Keys used in the session store
const (
	SessionTokenKey    = "auth_token"
	SessionIdentityKey = "user_record"
)

// SessionStore is persisted key/value storage that outlives the process
type SessionStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// Session holds the auth token and cached identity of the logged-in user.
// It is created once per process and injected wherever "who am I" matters.
type Session struct {
	mu       sync.RWMutex
	store    SessionStore
	token    string
	identity *User
}

// LoadSession restores the session persisted in store. A missing or corrupt
// entry yields an unauthenticated session rather than an error.
func LoadSession(store SessionStore) *Session {
	s := &Session{store: store}
	if store == nil {
		return s
	}

	token, ok, err := store.Get(SessionTokenKey)
	if err != nil {
		LogWarn("Failed to read session token: %v", err)
		return s
	}
	if !ok || token == "" {
		return s
	}

	raw, ok, err := store.Get(SessionIdentityKey)
	if err != nil || !ok {
		LogDebug("Session token present without identity, treating as logged out")
		return s
	}
	var identity User
	if err := json.Unmarshal([]byte(raw), &identity); err != nil || identity.ID == "" {
		LogDebug("Stored identity is unreadable, treating as logged out")
		return s
	}

	s.token = token
	s.identity = &identity
	return s
}

// CurrentUserID returns the id of the logged-in user, if any
func (s *Session) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil || s.token == "" {
		return "", false
	}
	return s.identity.ID, true
}

// Token returns the auth token, if any
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil || s.token == "" {
		return "", false
	}
	return s.token, true
}

// Identity returns the cached identity record, if any
func (s *Session) Identity() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil || s.token == "" {
		return User{}, false
	}
	return *s.identity, true
}

// IsAuthenticated reports whether a usable session is present
func (s *Session) IsAuthenticated() bool {
	_, ok := s.CurrentUserID()
	return ok
}

// Set initializes the session after a successful login and persists it
func (s *Session) Set(token string, identity User) error {
	if token == "" {
		return &ValidationError{Field: "token", Reason: "is required"}
	}
	if identity.ID == "" {
		return &ValidationError{Field: "identity", Reason: "id is required"}
	}

	raw, err := json.Marshal(identity)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Set(SessionIdentityKey, string(raw)); err != nil {
			return err
		}
		if err := s.store.Set(SessionTokenKey, token); err != nil {
			_ = s.store.Delete(SessionIdentityKey)
			return err
		}
	}

	s.token = token
	s.identity = &identity
	return nil
}

// Clear invalidates the session. The in-memory state is always dropped,
// even when removing the persisted copy fails.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.identity = nil
	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(SessionTokenKey, SessionIdentityKey); err != nil {
		return errors.Join(errors.New("failed to remove persisted session"), err)
	}
	return nil
}
