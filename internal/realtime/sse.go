package realtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iksnae/justchat/internal"
	"github.com/iksnae/justchat/internal/records"
)

const connectEvent = "PB_CONNECT"

// SSEFeed subscribes through the service's server-sent events endpoint
type SSEFeed struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	cfg        feedConfig
}

// NewSSEFeed creates a feed for the service at baseURL
func NewSSEFeed(baseURL string, tokens TokenSource, opts ...FeedOption) *SSEFeed {
	cfg := defaultFeedConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &SSEFeed{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		// No client timeout: the stream stays open for the subscription's lifetime
		httpClient: &http.Client{},
		cfg:        cfg,
	}
}

// Subscribe connects, registers topic and streams its events
func (f *SSEFeed) Subscribe(ctx context.Context, topic string) (<-chan RawEvent, error) {
	s, err := f.dial(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make(chan RawEvent, f.cfg.bufferSize)
	go run(ctx, f.cfg, s, func(ctx context.Context) (stream, error) {
		return f.dial(ctx, topic)
	}, out, "sse")
	return out, nil
}

// SSEEvent is a single server-sent event
type SSEEvent struct {
	ID    string
	Event string
	Data  string
}

// eventReader splits a text/event-stream body into events
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &eventReader{scanner: scanner}
}

// next returns the next complete event
func (r *eventReader) next() (SSEEvent, error) {
	var event SSEEvent
	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if event.Event != "" || event.Data != "" {
				return event, nil
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if event.Data != "" {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
		case strings.HasPrefix(line, "id:"):
			event.ID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return SSEEvent{}, err
	}
	if event.Event != "" || event.Data != "" {
		return event, nil
	}
	return SSEEvent{}, io.EOF
}

type sseStream struct {
	body   io.ReadCloser
	reader *eventReader
}

type changePayload struct {
	Action string          `json:"action"`
	Record json.RawMessage `json:"record"`
}

func (s *sseStream) next() (RawEvent, error) {
	for {
		ev, err := s.reader.next()
		if err != nil {
			return RawEvent{}, err
		}
		if ev.Event == connectEvent {
			continue
		}
		var payload changePayload
		if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
			logger().Warn().Str("event", ev.Event).Err(err).Msg("Dropping malformed realtime event")
			continue
		}
		return RawEvent{Topic: ev.Event, Action: payload.Action, Record: payload.Record}, nil
	}
}

func (s *sseStream) close() {
	s.body.Close()
}

func (f *SSEFeed) dial(ctx context.Context, topic string) (stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/realtime", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, statusError(resp.StatusCode, body)
	}

	reader := newEventReader(resp.Body)
	first, err := reader.next()
	if err != nil {
		resp.Body.Close()
		return nil, transportError(ctx, fmt.Errorf("failed to read connect event: %w", err))
	}
	if first.Event != connectEvent {
		resp.Body.Close()
		return nil, subscribeError(internal.ErrBackendUnavailable, fmt.Errorf("expected %s, got %q", connectEvent, first.Event))
	}
	var connect struct {
		ClientID string `json:"clientId"`
	}
	if err := json.Unmarshal([]byte(first.Data), &connect); err != nil || connect.ClientID == "" {
		resp.Body.Close()
		return nil, subscribeError(internal.ErrBackendUnavailable, errors.New("connect event carries no client id"))
	}

	if err := f.register(ctx, connect.ClientID, topic); err != nil {
		resp.Body.Close()
		return nil, err
	}
	logger().Debug().Str("client_id", connect.ClientID).Str("topic", topic).Msg("SSE subscription registered")
	return &sseStream{body: resp.Body, reader: reader}, nil
}

// register binds the topic to the connected client id
func (f *SSEFeed) register(ctx context.Context, clientID, topic string) error {
	body, err := json.Marshal(map[string]interface{}{
		"clientId":      clientID,
		"subscriptions": []string{topic},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/api/realtime", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.tokens != nil {
		if token, ok := f.tokens.Token(); ok {
			req.Header.Set("Authorization", token)
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, respBody)
	}
	return nil
}

func subscribeError(kind, err error) error {
	return &internal.RecordError{Collection: "realtime", Op: "subscribe", Kind: kind, Err: err}
}

func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return subscribeError(internal.ErrCancelled, ctx.Err())
	}
	return subscribeError(internal.ErrBackendUnavailable, err)
}

func statusError(status int, body []byte) error {
	recErr := &internal.RecordError{
		Collection: "realtime",
		Op:         "subscribe",
		Status:     status,
		Kind:       records.KindForStatus(status),
	}
	var apiErr struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &apiErr) == nil {
		recErr.Message = apiErr.Message
	}
	return recErr
}
