package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iksnae/justchat/internal"
	"github.com/iksnae/justchat/internal/config"
	"github.com/iksnae/justchat/internal/realtime"
	"github.com/iksnae/justchat/internal/records"
)

var (
	errNotLoggedIn = errors.New("not logged in: run `justchat login` first")
	// errQuiet marks failures that were already reported to the user
	errQuiet = errors.New("command failed")
)

// app carries the collaborators shared by every command
type app struct {
	cfg      *config.Config
	store    *internal.KVStore
	session  *internal.Session
	client   *records.Client
	cache    *internal.CacheManager
	resolver *internal.AttachmentResolver
	loc      *time.Location
	now      func() time.Time
}

// loadConfig layers command-line flags over the loaded configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, configPath != "")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if baseURLFlag != "" {
		cfg.BaseURL = baseURLFlag
	}
	if transportFlag != "" {
		cfg.Realtime.Transport = transportFlag
	}
	if sessionDBFlag != "" {
		cfg.SessionDB = sessionDBFlag
	}
	if cacheDirFlag != "" {
		cfg.CacheDir = cacheDirFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !verbose {
		internal.SetLogLevel(internal.ParseLogLevel(cfg.LogLevel))
	}
	internal.LogDebug("Configuration from %s, backend %s", cfg.Source(), cfg.BaseURL)

	store, err := internal.OpenKVStore(cfg.SessionDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	loc, _ := cfg.Location()
	maxUpload, _ := cfg.AttachmentLimit()
	session := internal.LoadSession(store)

	return &app{
		cfg:     cfg,
		store:   store,
		session: session,
		client: records.NewClient(cfg.BaseURL, session,
			records.WithTimeout(cfg.HTTPTimeout),
			records.WithPageSize(cfg.PageSize),
			records.WithMaxUploadSize(maxUpload),
		),
		cache:    internal.NewCacheManager(cfg.CacheDir, cfg.BaseURL),
		resolver: internal.NewAttachmentResolver(cfg.BaseURL, cfg.UsersCollectionID),
		loc:      loc,
		now:      time.Now,
	}, nil
}

// Close releases the session store
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		internal.LogWarn("Failed to close session store: %v", err)
	}
}

// currentUser returns the logged-in identity
func (a *app) currentUser() (internal.User, error) {
	u, ok := a.session.Identity()
	if !ok {
		return internal.User{}, errNotLoggedIn
	}
	return u, nil
}

// feed builds the configured realtime transport
func (a *app) feed() realtime.Feed {
	opts := []realtime.FeedOption{realtime.WithReconnectDelay(a.cfg.Realtime.ReconnectDelay)}
	if a.cfg.Realtime.Transport == config.TransportWebSocket {
		url := realtime.WebSocketURL(a.cfg.BaseURL, a.cfg.Realtime.WebSocketPath)
		return realtime.NewWebSocketFeed(url, a.session, opts...)
	}
	return realtime.NewSSEFeed(a.cfg.BaseURL, a.session, opts...)
}

// directory returns a user directory primed from the offline cache
func (a *app) directory() *internal.UserDirectory {
	dir := internal.NewUserDirectory(a.client)
	if users, err := a.cache.LoadUsers(); err == nil {
		dir.Prime(users...)
	}
	if self, ok := a.session.Identity(); ok {
		dir.Prime(self)
	}
	return dir
}

// check turns backend error kinds into what the user should see. An
// expired session is cleared so the next command asks for a login.
func (a *app) check(err error) error {
	switch {
	case err == nil:
		return nil
	case internal.IsCancelled(err):
		internal.LogDebug("Request cancelled: %v", err)
		return nil
	case errors.Is(err, internal.ErrAuthExpired):
		if cerr := a.session.Clear(); cerr != nil {
			internal.LogWarn("Failed to clear session: %v", cerr)
		}
		return fmt.Errorf("session expired, run `justchat login` again: %w", err)
	case errors.Is(err, internal.ErrBackendUnavailable):
		return fmt.Errorf("backend unavailable, please retry: %w", err)
	default:
		return err
	}
}
