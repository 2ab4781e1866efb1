package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "JUSTCHAT_"

// Defaults
const (
	DefaultBaseURL           = "https://kerembas.com.tr"
	DefaultUsersCollectionID = "_pb_users_auth_"
	DefaultTopic             = "messages/*"
	DefaultWebSocketPath     = "/api/realtime/ws"
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultPageSize          = 200
	DefaultMaxAttachmentSize = "5 MB"
	maxPageSize              = 1000
)

// Realtime transports
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// RealtimeConfig selects and tunes the live change feed
type RealtimeConfig struct {
	Transport      string        `yaml:"transport"`
	Topic          string        `yaml:"topic"`
	WebSocketPath  string        `yaml:"websocket_path"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// Config is the client configuration
type Config struct {
	BaseURL           string         `yaml:"base_url"`
	UsersCollectionID string         `yaml:"users_collection_id"`
	Realtime          RealtimeConfig `yaml:"realtime"`
	HTTPTimeout       time.Duration  `yaml:"http_timeout"`
	PageSize          int            `yaml:"page_size"`
	SessionDB         string         `yaml:"session_db"`
	CacheDir          string         `yaml:"cache_dir"`
	Timezone          string         `yaml:"timezone"`
	LogLevel          string         `yaml:"log_level"`
	MaxAttachmentSize string         `yaml:"max_attachment_size"`

	source string
}

// Dir returns the per-user configuration directory
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".justchat"
	}
	return filepath.Join(home, ".justchat")
}

// DefaultPath returns the default config file location
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		BaseURL:           DefaultBaseURL,
		UsersCollectionID: DefaultUsersCollectionID,
		Realtime: RealtimeConfig{
			Transport:      TransportSSE,
			Topic:          DefaultTopic,
			WebSocketPath:  DefaultWebSocketPath,
			ReconnectDelay: 2 * time.Second,
		},
		HTTPTimeout:       DefaultHTTPTimeout,
		PageSize:          DefaultPageSize,
		SessionDB:         filepath.Join(Dir(), "session.db"),
		CacheDir:          filepath.Join(Dir(), "cache"),
		Timezone:          "Local",
		LogLevel:          "info",
		MaxAttachmentSize: DefaultMaxAttachmentSize,
		source:            "defaults",
	}
}

// Load builds the configuration from defaults, the YAML file at path, a
// .env file and JUSTCHAT_* environment variables, in that order. A missing
// file is only an error when explicit is set.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	if err := cfg.mergeFile(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, err
		}
	}

	LoadDotEnv(".env")
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files when they exist. Variables already
// set in the environment win.
func LoadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s: %w", path, os.ErrNotExist)
		}
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	c.source = path
	return nil
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
			c.source = "env"
		}
	}
	str("BASE_URL", &c.BaseURL)
	str("USERS_COLLECTION_ID", &c.UsersCollectionID)
	str("REALTIME_TRANSPORT", &c.Realtime.Transport)
	str("REALTIME_TOPIC", &c.Realtime.Topic)
	str("REALTIME_WEBSOCKET_PATH", &c.Realtime.WebSocketPath)
	str("SESSION_DB", &c.SessionDB)
	str("CACHE_DIR", &c.CacheDir)
	str("TIMEZONE", &c.Timezone)
	str("LOG_LEVEL", &c.LogLevel)
	str("MAX_ATTACHMENT_SIZE", &c.MaxAttachmentSize)

	if v, ok := lookup(EnvPrefix + "HTTP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sHTTP_TIMEOUT: %w", EnvPrefix, err)
		}
		c.HTTPTimeout = d
	}
	if v, ok := lookup(EnvPrefix + "REALTIME_RECONNECT_DELAY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sREALTIME_RECONNECT_DELAY: %w", EnvPrefix, err)
		}
		c.Realtime.ReconnectDelay = d
	}
	if v, ok := lookup(EnvPrefix + "PAGE_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPAGE_SIZE: %w", EnvPrefix, err)
		}
		c.PageSize = n
	}
	return nil
}

func (c *Config) expandPaths() {
	c.SessionDB = expandHome(c.SessionDB)
	c.CacheDir = expandHome(c.CacheDir)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Validate checks the configuration and normalizes the base URL
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid base_url %q: must be an http(s) URL", c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.UsersCollectionID == "" {
		return fmt.Errorf("users_collection_id is empty")
	}
	switch c.Realtime.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		return fmt.Errorf("invalid realtime.transport %q: must be %s or %s", c.Realtime.Transport, TransportSSE, TransportWebSocket)
	}
	if c.Realtime.Topic == "" {
		return fmt.Errorf("realtime.topic is empty")
	}
	if c.Realtime.Transport == TransportWebSocket && !strings.HasPrefix(c.Realtime.WebSocketPath, "/") {
		return fmt.Errorf("invalid realtime.websocket_path %q: must start with /", c.Realtime.WebSocketPath)
	}
	if c.Realtime.ReconnectDelay < 0 {
		return fmt.Errorf("realtime.reconnect_delay must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		return fmt.Errorf("page_size must be between 1 and %d", maxPageSize)
	}
	if c.SessionDB == "" {
		return fmt.Errorf("session database path is empty: set --session-db, %sSESSION_DB or session_db in config", EnvPrefix)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	switch strings.ToLower(c.LogLevel) {
	case "error", "warn", "warning", "info", "debug":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if _, err := c.AttachmentLimit(); err != nil {
		return err
	}
	return nil
}

// Location returns the display timezone
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Timezone)
	}
}

// AttachmentLimit returns the maximum upload size in bytes
func (c *Config) AttachmentLimit() (uint64, error) {
	n, err := humanize.ParseBytes(c.MaxAttachmentSize)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid max_attachment_size %q", c.MaxAttachmentSize)
	}
	return n, nil
}

// Source describes where the last layer of configuration came from
func (c *Config) Source() string {
	return c.source
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
