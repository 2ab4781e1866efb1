package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iksnae/justchat/internal"
)

const handshakeTimeout = 10 * time.Second

// WebSocketFeed subscribes through a WebSocket relay of the change feed
type WebSocketFeed struct {
	url    string
	tokens TokenSource
	dialer *websocket.Dialer
	cfg    feedConfig
}

// WebSocketURL derives the relay address from the service base URL
func WebSocketURL(baseURL, path string) string {
	u := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return u + path
}

// NewWebSocketFeed creates a feed for the relay at wsURL
func NewWebSocketFeed(wsURL string, tokens TokenSource, opts ...FeedOption) *WebSocketFeed {
	cfg := defaultFeedConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &WebSocketFeed{
		url:    wsURL,
		tokens: tokens,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		cfg:    cfg,
	}
}

// ClientMessage is a request sent to the relay
type ClientMessage struct {
	Type      string   `json:"type"`
	RequestID string   `json:"request_id"`
	Topics    []string `json:"topics,omitempty"`
	Token     string   `json:"token,omitempty"`
}

// ServerMessage is a frame pushed by the relay
type ServerMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Action    string          `json:"action,omitempty"`
	Record    json.RawMessage `json:"record,omitempty"`
	Code      string          `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Subscribe dials the relay, subscribes topic and streams its events
func (f *WebSocketFeed) Subscribe(ctx context.Context, topic string) (<-chan RawEvent, error) {
	s, err := f.dial(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make(chan RawEvent, f.cfg.bufferSize)
	go run(ctx, f.cfg, s, func(ctx context.Context) (stream, error) {
		return f.dial(ctx, topic)
	}, out, "websocket")
	return out, nil
}

type wsStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	done      chan struct{}
}

func (s *wsStream) next() (RawEvent, error) {
	for {
		var msg ServerMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return RawEvent{}, fmt.Errorf("relay closed the connection: %w", err)
			}
			return RawEvent{}, err
		}
		switch msg.Type {
		case "event":
			return RawEvent{Topic: msg.Topic, Action: msg.Action, Record: msg.Record}, nil
		case "error":
			logger().Warn().Str("code", msg.Code).Msg("Relay error: " + msg.Message)
		default:
			logger().Debug().Str("type", msg.Type).Msg("Ignoring relay frame")
		}
	}
}

func (s *wsStream) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.conn.Close()
	})
}

func (f *WebSocketFeed) dial(ctx context.Context, topic string) (stream, error) {
	conn, resp, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, statusError(resp.StatusCode, nil)
		}
		return nil, transportError(ctx, err)
	}

	var token string
	if f.tokens != nil {
		token, _ = f.tokens.Token()
	}
	req := ClientMessage{
		Type:      "subscribe",
		RequestID: uuid.NewString(),
		Topics:    []string{topic},
		Token:     token,
	}
	if err := f.handshake(ctx, conn, req); err != nil {
		conn.Close()
		return nil, err
	}

	s := &wsStream{conn: conn, done: make(chan struct{})}
	// Unblock ReadJSON when the subscription is cancelled
	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-s.done:
		}
	}()
	logger().Debug().Str("request_id", req.RequestID).Str("topic", topic).Msg("WebSocket subscription acknowledged")
	return s, nil
}

func (f *WebSocketFeed) handshake(ctx context.Context, conn *websocket.Conn, req ClientMessage) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)
	defer func() {
		_ = conn.SetWriteDeadline(time.Time{})
		_ = conn.SetReadDeadline(time.Time{})
	}()

	if err := conn.WriteJSON(req); err != nil {
		return transportError(ctx, fmt.Errorf("failed to send subscribe: %w", err))
	}
	for {
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return transportError(ctx, fmt.Errorf("failed to read subscribe ack: %w", err))
		}
		if msg.RequestID != req.RequestID {
			continue
		}
		switch msg.Type {
		case "subscribe_ack":
			return nil
		case "error":
			kind := internal.ErrBackendUnavailable
			if msg.Code == "unauthorized" || msg.Code == "forbidden" {
				kind = internal.ErrAuthExpired
			}
			return &internal.RecordError{Collection: "realtime", Op: "subscribe", Kind: kind, Message: msg.Message}
		default:
			return subscribeError(internal.ErrBackendUnavailable, errors.New("unexpected reply "+msg.Type))
		}
	}
}
