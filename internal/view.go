package internal

import (
	"context"
	"sync"
)

// MessageService is the part of the record facade a conversation view needs
type MessageService interface {
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	SendMessage(ctx context.Context, req SendRequest) (Message, error)
}

// Subscriber delivers change events for one conversation at a time.
// Close must be idempotent and must not return while onEvent is running.
type Subscriber interface {
	Open(ctx context.Context, conversationID string, onEvent func(ChangeEvent)) error
	Close() error
}

// ConversationView owns the timeline, the live subscription and the
// in-flight history fetch of the conversation currently on screen.
//
// Callbacks registered with OnChange and OnError run on the delivery or
// fetch goroutine and must not call Switch or Close.
type ConversationView struct {
	svc      MessageService
	sub      Subscriber
	senderID string

	mu          sync.Mutex
	generation  uint64
	timeline    *Timeline
	cancelFetch context.CancelFunc
	fetchDone   chan struct{}
	loadErr     error
	onChange    func([]Message)
	onError     func(error)

	notifyMu sync.Mutex
	fetches  sync.WaitGroup
}

// NewConversationView creates a view that sends as senderID
func NewConversationView(svc MessageService, sub Subscriber, senderID string) *ConversationView {
	return &ConversationView{svc: svc, sub: sub, senderID: senderID}
}

// OnChange registers the callback that receives a snapshot after every change
func (v *ConversationView) OnChange(fn func(snapshot []Message)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = fn
}

// OnError registers the callback for history fetch failures
func (v *ConversationView) OnError(fn func(error)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onError = fn
}

// ConversationID returns the conversation on screen, if any
func (v *ConversationView) ConversationID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timeline == nil {
		return ""
	}
	return v.timeline.ConversationID()
}

// Snapshot returns the ordered messages of the current conversation
func (v *ConversationView) Snapshot() []Message {
	v.mu.Lock()
	tl := v.timeline
	v.mu.Unlock()
	if tl == nil {
		return nil
	}
	return tl.Snapshot()
}

// Switch tears down the current conversation and starts loading another one.
// The subscription is opened first and the history fetch runs concurrently;
// the timeline reconciles whichever arrives first.
func (v *ConversationView) Switch(ctx context.Context, conversationID string) error {
	if err := ValidateRecordID(conversationID); err != nil {
		return err
	}
	v.teardown()

	v.mu.Lock()
	v.generation++
	gen := v.generation
	tl := NewTimeline(conversationID)
	fetchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	v.timeline = tl
	v.cancelFetch = cancel
	v.fetchDone = done
	v.loadErr = nil
	v.mu.Unlock()

	LogDebug("Opening conversation %s", conversationID)
	if err := v.sub.Open(ctx, conversationID, func(ev ChangeEvent) {
		v.handleEvent(gen, tl, ev)
	}); err != nil {
		cancel()
		v.mu.Lock()
		v.loadErr = err
		v.mu.Unlock()
		close(done)
		return err
	}

	v.fetches.Add(1)
	go v.loadHistory(fetchCtx, gen, tl, done)
	return nil
}

func (v *ConversationView) loadHistory(ctx context.Context, gen uint64, tl *Timeline, done chan struct{}) {
	defer v.fetches.Done()
	defer close(done)

	msgs, err := v.svc.ListMessages(ctx, tl.ConversationID())
	if ctx.Err() != nil || IsCancelled(err) {
		LogDebug("Discarding history of %s after teardown", tl.ConversationID())
		return
	}

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		LogDebug("Discarding stale history of %s", tl.ConversationID())
		return
	}
	if err != nil {
		v.loadErr = err
		onError := v.onError
		v.mu.Unlock()
		LogWarn("Failed to load messages of %s: %v", tl.ConversationID(), err)
		if onError != nil {
			onError(err)
		}
		return
	}
	// Seeding under the view lock keeps a concurrent teardown from
	// observing a half-applied result
	tl.Seed(msgs)
	v.mu.Unlock()

	LogDebug("Loaded %d message(s) of %s", len(msgs), tl.ConversationID())
	v.notify(gen, tl)
}

func (v *ConversationView) handleEvent(gen uint64, tl *Timeline, ev ChangeEvent) {
	if !v.isCurrent(gen) {
		return
	}
	if tl.Ingest(ev) {
		v.notify(gen, tl)
	}
}

func (v *ConversationView) isCurrent(gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return gen == v.generation
}

func (v *ConversationView) notify(gen uint64, tl *Timeline) {
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()

	v.mu.Lock()
	current := gen == v.generation
	fn := v.onChange
	v.mu.Unlock()
	if current && fn != nil {
		fn(tl.Snapshot())
	}
}

// WaitLoaded blocks until the history of the current conversation has been
// applied or has failed
func (v *ConversationView) WaitLoaded(ctx context.Context) error {
	v.mu.Lock()
	done := v.fetchDone
	v.mu.Unlock()
	if done == nil {
		return &ValidationError{Field: "conversation", Reason: "no conversation selected"}
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadErr
}

// Send creates a message in the current conversation and applies it
// locally. The echo of the same record from the live feed is deduplicated.
func (v *ConversationView) Send(ctx context.Context, text string, attachment *Attachment) (Message, error) {
	v.mu.Lock()
	gen := v.generation
	tl := v.timeline
	v.mu.Unlock()
	if tl == nil {
		return Message{}, &ValidationError{Field: "conversation", Reason: "no conversation selected"}
	}

	req := SendRequest{
		ConversationID: tl.ConversationID(),
		SenderID:       v.senderID,
		Text:           text,
		Attachment:     attachment,
	}
	if err := req.Validate(); err != nil {
		return Message{}, err
	}

	m, err := v.svc.SendMessage(ctx, req)
	if err != nil {
		return Message{}, err
	}
	if v.isCurrent(gen) && tl.Ingest(ChangeEvent{Action: ActionCreate, Message: m}) {
		v.notify(gen, tl)
	}
	return m, nil
}

// teardown invalidates the current scope: later fetch results and events
// are ignored, the fetch is cancelled and the subscription closed
func (v *ConversationView) teardown() {
	v.mu.Lock()
	v.generation++
	cancel := v.cancelFetch
	v.cancelFetch = nil
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Close waits for an in-flight delivery, so it runs outside the lock
	if err := v.sub.Close(); err != nil {
		LogWarn("Failed to close subscription: %v", err)
	}
}

// Close releases the view. It is safe to call more than once.
func (v *ConversationView) Close() error {
	v.teardown()
	v.fetches.Wait()
	return nil
}
