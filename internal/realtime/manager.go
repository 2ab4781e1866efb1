package realtime

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/iksnae/justchat/internal"
)

// State is the lifecycle state of a Manager
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

func logger() *zerolog.Logger {
	l := internal.Logger().With().Str("component", "realtime").Logger()
	return &l
}

// Manager narrows the shared message feed to one conversation at a time.
// It satisfies internal.Subscriber.
type Manager struct {
	feed  Feed
	topic string

	mu     sync.Mutex
	state  State
	convID string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager that subscribes topic on feed
func NewManager(feed Feed, topic string) *Manager {
	if topic == "" {
		topic = "messages/*"
	}
	return &Manager{feed: feed, topic: topic}
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ConversationID returns the conversation being watched, if any
func (m *Manager) ConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.convID
}

// Open subscribes to the events of conversationID. An open subscription is
// closed first. onEvent runs on a single goroutine in receipt order and
// must not call Open or Close.
func (m *Manager) Open(ctx context.Context, conversationID string, onEvent func(internal.ChangeEvent)) error {
	if err := internal.ValidateRecordID(conversationID); err != nil {
		return err
	}
	if err := m.Close(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = StateOpening
	m.convID = conversationID
	m.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	events, err := m.feed.Subscribe(subCtx, m.topic)
	if err != nil {
		cancel()
		m.mu.Lock()
		m.state = StateClosed
		m.convID = ""
		m.mu.Unlock()
		return err
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.state = StateOpen
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	logger().Debug().Str("conversation", conversationID).Str("topic", m.topic).Msg("Subscription open")
	go m.deliver(subCtx, conversationID, events, onEvent, done)
	return nil
}

func (m *Manager) deliver(ctx context.Context, conversationID string, events <-chan RawEvent, onEvent func(internal.ChangeEvent), done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-events:
			if !ok {
				m.mu.Lock()
				if m.done == done {
					m.state = StateClosed
				}
				m.mu.Unlock()
				logger().Warn().Str("conversation", conversationID).Msg("Change feed closed")
				return
			}
			if ctx.Err() != nil {
				return
			}
			ev, ok := m.toChangeEvent(raw)
			if !ok || ev.Message.ConversationID != conversationID {
				continue
			}
			onEvent(ev)
		}
	}
}

// toChangeEvent parses a raw event; malformed records are logged and dropped
func (m *Manager) toChangeEvent(raw RawEvent) (internal.ChangeEvent, bool) {
	if !m.matchesTopic(raw.Topic) {
		return internal.ChangeEvent{}, false
	}
	msg, err := internal.ParseMessageRecord(raw.Record)
	if err != nil {
		logger().Warn().Err(err).Str("action", raw.Action).Msg("Dropping malformed message event")
		return internal.ChangeEvent{}, false
	}
	return internal.ChangeEvent{Action: internal.ChangeAction(raw.Action), Message: msg}, true
}

func (m *Manager) matchesTopic(topic string) bool {
	if topic == "" {
		return true
	}
	return collectionOf(topic) == collectionOf(m.topic)
}

// collectionOf strips a "/*" or "/<id>" suffix from a topic
func collectionOf(topic string) string {
	if i := strings.Index(topic, "/"); i >= 0 {
		return topic[:i]
	}
	return topic
}

// Close ends the subscription. Once it returns no further events are
// delivered. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.state = StateClosed
	m.convID = ""
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	logger().Debug().Msg("Subscription closed")
	return nil
}
