package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const cacheVersion = "1.0"

// ErrCacheMiss is returned when nothing usable is cached
var ErrCacheMiss = errors.New("cache miss")

// CacheManager keeps read-only copies of backend data for offline display.
// Each backend base URL gets its own directory.
type CacheManager struct {
	cacheDir string
	baseURL  string
}

// CacheMetadata stores metadata about the cache
type CacheMetadata struct {
	BaseURL      string    `json:"base_url" yaml:"base_url"`
	UserID       string    `json:"user_id" yaml:"user_id"`
	CacheVersion string    `json:"cache_version" yaml:"cache_version"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// ConversationIndex is the YAML index of the user's conversations
type ConversationIndex struct {
	Conversations []Conversation `yaml:"conversations"`
	Metadata      CacheMetadata  `yaml:"metadata"`
}

// UserIndex is the YAML copy of the user directory
type UserIndex struct {
	Users    []User        `yaml:"users"`
	Metadata CacheMetadata `yaml:"metadata"`
}

// cachedMessages is the JSON copy of one conversation's timeline
type cachedMessages struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []Message     `json:"messages"`
	Metadata       CacheMetadata `json:"metadata"`
}

// NewCacheManager creates a cache manager for the backend at baseURL
func NewCacheManager(cacheDir, baseURL string) *CacheManager {
	return &CacheManager{
		cacheDir: cacheDir,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// GetCacheDir returns the directory holding this backend's cache
func (cm *CacheManager) GetCacheDir() string {
	sum := sha256.Sum256([]byte(cm.baseURL))
	return filepath.Join(cm.cacheDir, hex.EncodeToString(sum[:])[:16])
}

// EnsureCacheDir ensures the cache directory exists
func (cm *CacheManager) EnsureCacheDir() error {
	return os.MkdirAll(cm.GetCacheDir(), 0700)
}

// GetIndexPath returns the path to the conversation index YAML file
func (cm *CacheManager) GetIndexPath() string {
	return filepath.Join(cm.GetCacheDir(), "conversations.yaml")
}

// GetUsersPath returns the path to the user directory YAML file
func (cm *CacheManager) GetUsersPath() string {
	return filepath.Join(cm.GetCacheDir(), "users.yaml")
}

// GetMessagesPath returns the path to a conversation's message cache
func (cm *CacheManager) GetMessagesPath(conversationID string) string {
	return filepath.Join(cm.GetCacheDir(), fmt.Sprintf("messages_%s.json", conversationID))
}

func (cm *CacheManager) newMetadata(userID string) CacheMetadata {
	now := time.Now()
	return CacheMetadata{
		BaseURL:      cm.baseURL,
		UserID:       userID,
		CacheVersion: cacheVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (cm *CacheManager) valid(meta CacheMetadata, userID string) bool {
	return meta.BaseURL == cm.baseURL && meta.CacheVersion == cacheVersion &&
		(userID == "" || meta.UserID == userID)
}

func (cm *CacheManager) writeFile(path string, data []byte) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return &StorageError{Path: cm.GetCacheDir(), Op: "mkdir", Err: err}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return &StorageError{Path: path, Op: "write", Err: err}
	}
	return nil
}

func readCacheFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, &StorageError{Path: path, Op: "read", Err: err}
	}
	return data, nil
}

// IsCacheValid reports whether a conversation index exists for userID
func (cm *CacheManager) IsCacheValid(userID string) bool {
	index, err := cm.LoadIndex()
	if err != nil {
		return false
	}
	return cm.valid(index.Metadata, userID)
}

// LoadIndex loads the conversation index
func (cm *CacheManager) LoadIndex() (*ConversationIndex, error) {
	data, err := readCacheFile(cm.GetIndexPath())
	if err != nil {
		return nil, err
	}
	var index ConversationIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, &ParseError{Source: "cache", Key: "conversations", Err: fmt.Errorf("failed to unmarshal index: %w", err)}
	}
	return &index, nil
}

// SaveConversations replaces the cached conversation list of userID
func (cm *CacheManager) SaveConversations(userID string, convs []Conversation) error {
	meta := cm.newMetadata(userID)
	if existing, err := cm.LoadIndex(); err == nil && cm.valid(existing.Metadata, userID) {
		meta.CreatedAt = existing.Metadata.CreatedAt
	}

	data, err := yaml.Marshal(&ConversationIndex{Conversations: convs, Metadata: meta})
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	return cm.writeFile(cm.GetIndexPath(), data)
}

// LoadConversations returns the cached conversation list of userID
func (cm *CacheManager) LoadConversations(userID string) ([]Conversation, time.Time, error) {
	index, err := cm.LoadIndex()
	if err != nil {
		return nil, time.Time{}, err
	}
	if !cm.valid(index.Metadata, userID) {
		return nil, time.Time{}, ErrCacheMiss
	}
	return index.Conversations, index.Metadata.UpdatedAt, nil
}

// SaveUsers stores the user directory
func (cm *CacheManager) SaveUsers(users []User) error {
	data, err := yaml.Marshal(&UserIndex{Users: users, Metadata: cm.newMetadata("")})
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}
	return cm.writeFile(cm.GetUsersPath(), data)
}

// LoadUsers returns the cached user directory
func (cm *CacheManager) LoadUsers() ([]User, error) {
	data, err := readCacheFile(cm.GetUsersPath())
	if err != nil {
		return nil, err
	}
	var index UserIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, &ParseError{Source: "cache", Key: "users", Err: err}
	}
	if !cm.valid(index.Metadata, "") {
		return nil, ErrCacheMiss
	}
	return index.Users, nil
}

// SaveMessages stores a snapshot of a conversation's timeline
func (cm *CacheManager) SaveMessages(userID, conversationID string, msgs []Message) error {
	if err := ValidateRecordID(conversationID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cachedMessages{
		ConversationID: conversationID,
		Messages:       msgs,
		Metadata:       cm.newMetadata(userID),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	return cm.writeFile(cm.GetMessagesPath(conversationID), data)
}

// LoadMessages returns a cached timeline snapshot
func (cm *CacheManager) LoadMessages(userID, conversationID string) ([]Message, error) {
	if err := ValidateRecordID(conversationID); err != nil {
		return nil, err
	}
	data, err := readCacheFile(cm.GetMessagesPath(conversationID))
	if err != nil {
		return nil, err
	}
	var cached cachedMessages
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, &ParseError{Source: "cache", Key: conversationID, Err: err}
	}
	if !cm.valid(cached.Metadata, userID) || cached.ConversationID != conversationID {
		return nil, ErrCacheMiss
	}
	return cached.Messages, nil
}

// ClearCache removes everything cached for this backend
func (cm *CacheManager) ClearCache() error {
	if err := os.RemoveAll(cm.GetCacheDir()); err != nil {
		return &StorageError{Path: cm.GetCacheDir(), Op: "remove", Err: err}
	}
	return nil
}
