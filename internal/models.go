package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var recordIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateRecordID rejects ids that are empty or contain characters a
// backend id never has
func ValidateRecordID(id string) error {
	if id == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if !recordIDPattern.MatchString(id) {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("invalid record id %q", id)}
	}
	return nil
}

// Conversation is a chat between a set of participants
type Conversation struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	IsGroup      bool      `json:"is_group" yaml:"is_group"`
	Participants []string  `json:"participants" yaml:"participants"`
	Created      time.Time `json:"created,omitempty" yaml:"created,omitempty"`
	Updated      time.Time `json:"updated,omitempty" yaml:"updated,omitempty"`
}

// HasParticipant reports whether userID takes part in the conversation
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message is a single immutable chat message
type Message struct {
	ID             string    `json:"id" yaml:"id"`
	CollectionID   string    `json:"collection_id,omitempty" yaml:"collection_id,omitempty"`
	ConversationID string    `json:"conversation" yaml:"conversation"`
	SenderID       string    `json:"sender" yaml:"sender"`
	Content        string    `json:"content" yaml:"content"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	Attachments    []string  `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// HasAttachment reports whether the message carries at least one file
func (m Message) HasAttachment() bool {
	return len(m.Attachments) > 0 && m.Attachments[0] != ""
}

// User is a chat participant
type User struct {
	ID           string `json:"id" yaml:"id"`
	CollectionID string `json:"collection_id,omitempty" yaml:"collection_id,omitempty"`
	Username     string `json:"username,omitempty" yaml:"username,omitempty"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	Avatar       string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
}

// DisplayName returns the best human-readable label for the user
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	default:
		return u.ID
	}
}

// Attachment is a file uploaded together with a message
type Attachment struct {
	Filename string
	Data     []byte
}

// SendRequest describes a message to create
type SendRequest struct {
	ConversationID string
	SenderID       string
	Text           string
	Attachment     *Attachment
	Timestamp      time.Time
}

// Validate checks the request before it reaches the backend
func (r SendRequest) Validate() error {
	if r.ConversationID == "" {
		return &ValidationError{Field: "conversation", Reason: "is required"}
	}
	if r.SenderID == "" {
		return &ValidationError{Field: "sender", Reason: "is required"}
	}
	hasFile := r.Attachment != nil && r.Attachment.Filename != ""
	if strings.TrimSpace(r.Text) == "" && !hasFile {
		return &ValidationError{Field: "message", Reason: "text or attachment is required"}
	}
	return nil
}

// recordEnvelope holds the fields the backend adds to every record
type recordEnvelope struct {
	ID             string `json:"id"`
	CollectionID   string `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	Created        string `json:"created"`
	Updated        string `json:"updated"`
}

type messageRecord struct {
	recordEnvelope
	Conversation string     `json:"conversation"`
	Sender       string     `json:"sender"`
	Content      string     `json:"content"`
	Timestamp    string     `json:"timestamp"`
	Attachments  stringList `json:"attachments"`
}

type conversationRecord struct {
	recordEnvelope
	Name         string     `json:"name"`
	IsGroup      bool       `json:"isGroup"`
	Participants stringList `json:"participants"`
}

type userRecord struct {
	recordEnvelope
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

// stringList accepts either a single string or an array of strings;
// single-value relation and file fields are serialized as plain strings
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*l = nil
		} else {
			*l = stringList{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or string array: %w", err)
	}
	out := many[:0]
	for _, s := range many {
		if s != "" {
			out = append(out, s)
		}
	}
	*l = stringList(out)
	return nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses the date formats the backend emits
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseMessageRecord validates and coerces a raw message record
func ParseMessageRecord(raw json.RawMessage) (Message, error) {
	var rec messageRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Message{}, &ParseError{Source: "messages", Key: "record", Err: err}
	}
	if rec.ID == "" {
		return Message{}, &ParseError{Source: "messages", Key: "record", Err: errors.New("missing id")}
	}
	if rec.Conversation == "" {
		return Message{}, &ParseError{Source: "messages", Key: rec.ID, Err: errors.New("missing conversation")}
	}

	ts, err := ParseTimestamp(rec.Timestamp)
	if err != nil {
		// Records created without an explicit timestamp fall back to the server creation time
		created, cerr := ParseTimestamp(rec.Created)
		if cerr != nil {
			return Message{}, &ParseError{Source: "messages", Key: rec.ID, Err: fmt.Errorf("no usable timestamp: %w", err)}
		}
		ts = created
	}

	return Message{
		ID:             rec.ID,
		CollectionID:   rec.CollectionID,
		ConversationID: rec.Conversation,
		SenderID:       rec.Sender,
		Content:        rec.Content,
		Timestamp:      ts,
		Attachments:    []string(rec.Attachments),
	}, nil
}

// ParseConversationRecord validates and coerces a raw conversation record
func ParseConversationRecord(raw json.RawMessage) (Conversation, error) {
	var rec conversationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Conversation{}, &ParseError{Source: "conversations", Key: "record", Err: err}
	}
	if rec.ID == "" {
		return Conversation{}, &ParseError{Source: "conversations", Key: "record", Err: errors.New("missing id")}
	}

	conv := Conversation{
		ID:           rec.ID,
		Name:         rec.Name,
		IsGroup:      rec.IsGroup,
		Participants: []string(rec.Participants),
	}
	conv.Created, _ = ParseTimestamp(rec.Created)
	conv.Updated, _ = ParseTimestamp(rec.Updated)
	return conv, nil
}

// ParseUserRecord validates and coerces a raw user record
func ParseUserRecord(raw json.RawMessage) (User, error) {
	var rec userRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return User{}, &ParseError{Source: "users", Key: "record", Err: err}
	}
	if rec.ID == "" {
		return User{}, &ParseError{Source: "users", Key: "record", Err: errors.New("missing id")}
	}
	return User{
		ID:           rec.ID,
		CollectionID: rec.CollectionID,
		Username:     rec.Username,
		Name:         rec.Name,
		Avatar:       rec.Avatar,
	}, nil
}

// FormatTimestamp renders t in the layout the backend stores
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000Z")
}
