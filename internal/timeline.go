package internal

import (
	"sort"
	"sync"
)

// ChangeAction is the kind of change carried by a realtime event
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// ChangeEvent is a parsed realtime notification for a message record
type ChangeEvent struct {
	Action  ChangeAction
	Message Message
}

// Timeline is the ordered, deduplicated view of one conversation's messages.
// It reconciles the historical fetch (Seed) with the live feed (Ingest);
// the two may race and overlap in any order.
type Timeline struct {
	mu             sync.Mutex
	conversationID string
	messages       []Message
	seen           map[string]struct{}
}

// NewTimeline creates an empty timeline for a conversation. An empty
// conversationID accepts messages from any conversation.
func NewTimeline(conversationID string) *Timeline {
	return &Timeline{
		conversationID: conversationID,
		seen:           make(map[string]struct{}),
	}
}

// ConversationID returns the conversation the timeline belongs to
func (t *Timeline) ConversationID() string {
	return t.conversationID
}

func (t *Timeline) accepts(m Message) bool {
	return t.conversationID == "" || m.ConversationID == t.conversationID
}

// Seed merges the historical fetch into the timeline. The payload is
// stable-sorted by timestamp; payload versions replace local copies with the
// same id and messages only known locally are kept. On equal timestamps the
// seeded messages come first.
func (t *Timeline) Seed(msgs []Message) {
	incoming := make([]Message, 0, len(msgs))
	inPayload := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		if m.ID == "" || !t.accepts(m) {
			LogDebug("Dropping seeded message %q for conversation %q", m.ID, m.ConversationID)
			continue
		}
		if _, dup := inPayload[m.ID]; dup {
			continue
		}
		inPayload[m.ID] = struct{}{}
		incoming = append(incoming, m)
	}
	sort.SliceStable(incoming, func(i, j int) bool {
		return incoming[i].Timestamp.Before(incoming[j].Timestamp)
	})

	t.mu.Lock()
	defer t.mu.Unlock()

	retained := make([]Message, 0, len(t.messages))
	for _, m := range t.messages {
		if _, ok := inPayload[m.ID]; !ok {
			retained = append(retained, m)
		}
	}
	if len(retained) > 0 {
		LogDebug("Keeping %d live message(s) absent from history of %s", len(retained), t.conversationID)
	}

	merged := make([]Message, 0, len(incoming)+len(retained))
	i, j := 0, 0
	for i < len(incoming) && j < len(retained) {
		if retained[j].Timestamp.Before(incoming[i].Timestamp) {
			merged = append(merged, retained[j])
			j++
		} else {
			merged = append(merged, incoming[i])
			i++
		}
	}
	merged = append(merged, incoming[i:]...)
	merged = append(merged, retained[j:]...)

	t.messages = merged
	t.seen = make(map[string]struct{}, len(merged))
	for _, m := range merged {
		t.seen[m.ID] = struct{}{}
	}
}

// Ingest applies one live event and reports whether the view changed.
// Duplicate creates are ignored; updates and deletes are not modeled.
func (t *Timeline) Ingest(ev ChangeEvent) bool {
	m := ev.Message
	switch ev.Action {
	case ActionCreate:
	case ActionUpdate, ActionDelete:
		LogDebug("Ignoring %s event for message %s", ev.Action, m.ID)
		return false
	default:
		LogWarn("Ignoring event with unknown action %q for message %s", ev.Action, m.ID)
		return false
	}
	if m.ID == "" {
		LogWarn("Ignoring message event without id")
		return false
	}
	if !t.accepts(m) {
		LogDebug("Dropping message %s for conversation %s", m.ID, m.ConversationID)
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[m.ID]; ok {
		return false
	}

	// Upper bound keeps arrival order among equal timestamps
	pos := sort.Search(len(t.messages), func(i int) bool {
		return t.messages[i].Timestamp.After(m.Timestamp)
	})
	t.messages = append(t.messages, Message{})
	copy(t.messages[pos+1:], t.messages[pos:])
	t.messages[pos] = m
	t.seen[m.ID] = struct{}{}
	return true
}

// Snapshot returns a point-in-time copy of the ordered messages
func (t *Timeline) Snapshot() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages in the timeline
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Contains reports whether a message id has been seen
func (t *Timeline) Contains(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[id]
	return ok
}
