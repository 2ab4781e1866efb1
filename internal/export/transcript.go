package export

import (
	"time"

	"github.com/iksnae/justchat/internal"
)

// Transcript is a conversation prepared for export
type Transcript struct {
	ConversationID string              `json:"conversation_id" yaml:"conversation_id"`
	Title          string              `json:"title" yaml:"title"`
	IsGroup        bool                `json:"is_group" yaml:"is_group"`
	Participants   []Participant       `json:"participants" yaml:"participants"`
	ExportedAt     time.Time           `json:"exported_at" yaml:"exported_at"`
	Messages       []TranscriptMessage `json:"messages" yaml:"messages"`
}

// Participant is a member of the exported conversation
type Participant struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// TranscriptMessage is one exported message with its sender resolved
type TranscriptMessage struct {
	ID          string    `json:"id" yaml:"id"`
	SenderID    string    `json:"sender_id" yaml:"sender_id"`
	Sender      string    `json:"sender" yaml:"sender"`
	Content     string    `json:"content" yaml:"content"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Attachments []string  `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// NewTranscript builds a transcript from an ordered message snapshot.
// dir and resolver may be nil.
func NewTranscript(conv internal.Conversation, selfID string, msgs []internal.Message, dir *internal.UserDirectory, resolver *internal.AttachmentResolver) *Transcript {
	name := func(id string) string {
		if dir == nil {
			return id
		}
		return dir.DisplayName(id)
	}

	t := &Transcript{
		ConversationID: conv.ID,
		Title:          internal.ConversationTitle(conv, selfID, dir),
		IsGroup:        conv.IsGroup,
		ExportedAt:     time.Now().UTC(),
		Messages:       make([]TranscriptMessage, 0, len(msgs)),
	}
	for _, p := range conv.Participants {
		t.Participants = append(t.Participants, Participant{ID: p, Name: name(p)})
	}

	for _, m := range msgs {
		tm := TranscriptMessage{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Sender:    name(m.SenderID),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
		if resolver != nil {
			tm.Attachments = resolver.AttachmentURLs(m)
		} else {
			tm.Attachments = append(tm.Attachments, m.Attachments...)
		}
		t.Messages = append(t.Messages, tm)
	}
	return t
}
