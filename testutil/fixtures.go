package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Collection ids used by the fixtures
const (
	UsersCollectionID         = "_pb_users_auth_"
	MessagesCollectionID      = "pbc_messages"
	ConversationsCollectionID = "pbc_conversations"
)

// Record is a backend record in wire form
type Record map[string]interface{}

// ID returns the record id
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Str returns a string field of the record
func (r Record) Str(field string) string {
	s, _ := r[field].(string)
	return s
}

// backendTime formats t in the layout the backend emits
func backendTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000Z")
}

// MessageRecord builds a message record
func MessageRecord(id, conversation, sender, content string, ts time.Time, attachments ...string) Record {
	if attachments == nil {
		attachments = []string{}
	}
	return Record{
		"id":             id,
		"collectionId":   MessagesCollectionID,
		"collectionName": "messages",
		"created":        backendTime(ts),
		"updated":        backendTime(ts),
		"conversation":   conversation,
		"sender":         sender,
		"content":        content,
		"timestamp":      backendTime(ts),
		"attachments":    attachments,
	}
}

// ConversationRecord builds a conversation record
func ConversationRecord(id, name string, isGroup bool, participants ...string) Record {
	now := backendTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return Record{
		"id":             id,
		"collectionId":   ConversationsCollectionID,
		"collectionName": "conversations",
		"created":        now,
		"updated":        now,
		"name":           name,
		"isGroup":        isGroup,
		"participants":   participants,
	}
}

// UserRecord builds a user record
func UserRecord(id, username, name, avatar string) Record {
	now := backendTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return Record{
		"id":             id,
		"collectionId":   UsersCollectionID,
		"collectionName": "users",
		"created":        now,
		"updated":        now,
		"username":       username,
		"name":           name,
		"avatar":         avatar,
	}
}

// CreateFileFixture writes data to name inside dir and returns the full path
func CreateFileFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", name, err)
	}
	return path
}

// PNGBytes is the header of a PNG image, enough for content sniffing
var PNGBytes = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R', 0, 0, 0, 1, 0, 0, 0, 1, 8, 2, 0, 0, 0}
