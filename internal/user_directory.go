package internal

import (
	"context"
	"sort"
	"sync"
)

// UserFetcher loads a single user record
type UserFetcher interface {
	GetUser(ctx context.Context, userID string) (User, error)
}

// UserDirectory is a read-mostly cache of users keyed by id
type UserDirectory struct {
	mu      sync.RWMutex
	users   map[string]User
	fetcher UserFetcher
}

// NewUserDirectory creates a directory that fills gaps through fetcher
func NewUserDirectory(fetcher UserFetcher) *UserDirectory {
	return &UserDirectory{
		users:   make(map[string]User),
		fetcher: fetcher,
	}
}

// Prime stores already known users
func (d *UserDirectory) Prime(users ...User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range users {
		if u.ID != "" {
			d.users[u.ID] = u
		}
	}
}

// Lookup returns a cached user
func (d *UserDirectory) Lookup(userID string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	return u, ok
}

// Len returns the number of cached users
func (d *UserDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// All returns the cached users sorted by display name
func (d *UserDirectory) All() []User {
	d.mu.RLock()
	users := make([]User, 0, len(d.users))
	for _, u := range d.users {
		users = append(users, u)
	}
	d.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		return users[i].DisplayName() < users[j].DisplayName()
	})
	return users
}

// Resolve fetches the given ids that are not cached yet. Lookup failures
// are logged and skipped; only cancellation is returned.
func (d *UserDirectory) Resolve(ctx context.Context, userIDs []string) error {
	if d.fetcher == nil {
		return nil
	}
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, ok := d.Lookup(id); ok {
			continue
		}
		u, err := d.fetcher.GetUser(ctx, id)
		if err != nil {
			if IsCancelled(err) || ctx.Err() != nil {
				return err
			}
			LogWarn("Failed to load user %s: %v", id, err)
			continue
		}
		d.Prime(u)
	}
	return nil
}

// DisplayName returns the user's name, or the id when unknown
func (d *UserDirectory) DisplayName(userID string) string {
	if u, ok := d.Lookup(userID); ok {
		return u.DisplayName()
	}
	return userID
}
