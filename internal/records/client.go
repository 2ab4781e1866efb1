// Package records is the typed facade over the record service REST API.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/iksnae/justchat/internal"
)

// Collection names
const (
	CollectionMessages      = "messages"
	CollectionConversations = "conversations"
	CollectionUsers         = "users"
)

const (
	defaultPageSize = 200
	defaultTimeout  = 30 * time.Second
)

// TokenSource provides the auth token sent with every request
type TokenSource interface {
	Token() (string, bool)
}

// Client talks to the record service
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	pageSize   int
	maxUpload  int64
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithPageSize sets the page size used for full-list fetches
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxUploadSize limits attachment size in bytes; 0 disables the check
func WithMaxUploadSize(n uint64) Option {
	return func(c *Client) { c.maxUpload = int64(n) }
}

// NewClient creates a client for baseURL. tokens may be nil for
// unauthenticated use such as login and health checks.
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultTimeout},
		pageSize:   defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AuthResult is the outcome of a successful login
type AuthResult struct {
	Token string
	User  internal.User
}

type authResponse struct {
	Token  string          `json:"token"`
	Record json.RawMessage `json:"record"`
}

type listResponse struct {
	Page       int               `json:"page"`
	PerPage    int               `json:"perPage"`
	TotalItems int               `json:"totalItems"`
	TotalPages int               `json:"totalPages"`
	Items      []json.RawMessage `json:"items"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    map[string]struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"data"`
}

// request describes one call against the service
type request struct {
	collection  string
	op          string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	auth        bool
}

// AuthWithPassword logs in with username (or email) and password
func (c *Client) AuthWithPassword(ctx context.Context, identity, password string) (AuthResult, error) {
	if strings.TrimSpace(identity) == "" || password == "" {
		return AuthResult{}, internal.ErrMissingCredentials
	}

	body, err := json.Marshal(map[string]string{"identity": identity, "password": password})
	if err != nil {
		return AuthResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp authResponse
	err = c.do(ctx, request{
		collection:  CollectionUsers,
		op:          "auth",
		method:      http.MethodPost,
		path:        "/api/collections/users/auth-with-password",
		body:        body,
		contentType: "application/json",
	}, &resp)
	if err != nil {
		var recErr *internal.RecordError
		if errors.As(err, &recErr) && recErr.Status == http.StatusBadRequest {
			recErr.Kind = internal.ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	return parseAuth(resp)
}

// AuthRefresh exchanges the current token for a fresh one
func (c *Client) AuthRefresh(ctx context.Context) (AuthResult, error) {
	var resp authResponse
	err := c.do(ctx, request{
		collection: CollectionUsers,
		op:         "auth-refresh",
		method:     http.MethodPost,
		path:       "/api/collections/users/auth-refresh",
		auth:       true,
	}, &resp)
	if err != nil {
		return AuthResult{}, err
	}
	return parseAuth(resp)
}

func parseAuth(resp authResponse) (AuthResult, error) {
	if resp.Token == "" {
		return AuthResult{}, &internal.RecordError{
			Collection: CollectionUsers,
			Op:         "auth",
			Kind:       internal.ErrBackendUnavailable,
			Err:        errors.New("response carries no token"),
		}
	}
	user, err := internal.ParseUserRecord(resp.Record)
	if err != nil {
		return AuthResult{}, &internal.RecordError{Collection: CollectionUsers, Op: "auth", Kind: internal.ErrBackendUnavailable, Err: err}
	}
	return AuthResult{Token: resp.Token, User: user}, nil
}

// Health checks that the service is reachable
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, request{
		collection: "health",
		op:         "health",
		method:     http.MethodGet,
		path:       "/api/health",
	}, nil)
}

// ListConversations returns the conversations userID takes part in, most
// recently updated first
func (c *Client) ListConversations(ctx context.Context, userID string) ([]internal.Conversation, error) {
	filter, err := ParticipantFilter(userID)
	if err != nil {
		return nil, err
	}
	items, err := c.fullList(ctx, CollectionConversations, filter, "-updated")
	if err != nil {
		return nil, err
	}

	convs := make([]internal.Conversation, 0, len(items))
	for _, raw := range items {
		conv, err := internal.ParseConversationRecord(raw)
		if err != nil {
			internal.LogWarn("Skipping conversation record: %v", err)
			continue
		}
		convs = append(convs, conv)
	}
	return internal.DedupConversations(convs), nil
}

// ListMessages returns the full history of a conversation in the order the
// service sorts it (newest first)
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]internal.Message, error) {
	filter, err := ConversationFilter(conversationID)
	if err != nil {
		return nil, err
	}
	items, err := c.fullList(ctx, CollectionMessages, filter, "-timestamp")
	if err != nil {
		return nil, err
	}

	msgs := make([]internal.Message, 0, len(items))
	for _, raw := range items {
		m, err := internal.ParseMessageRecord(raw)
		if err != nil {
			internal.LogWarn("Skipping message record: %v", err)
			continue
		}
		if m.ConversationID != conversationID {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// ListUsers returns every user visible to the session
func (c *Client) ListUsers(ctx context.Context) ([]internal.User, error) {
	items, err := c.fullList(ctx, CollectionUsers, "", "")
	if err != nil {
		return nil, err
	}
	users := make([]internal.User, 0, len(items))
	for _, raw := range items {
		u, err := internal.ParseUserRecord(raw)
		if err != nil {
			internal.LogWarn("Skipping user record: %v", err)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// GetUser loads one user by id
func (c *Client) GetUser(ctx context.Context, userID string) (internal.User, error) {
	if err := internal.ValidateRecordID(userID); err != nil {
		return internal.User{}, err
	}
	var raw json.RawMessage
	err := c.do(ctx, request{
		collection: CollectionUsers,
		op:         "get",
		method:     http.MethodGet,
		path:       "/api/collections/users/records/" + url.PathEscape(userID),
		auth:       true,
	}, &raw)
	if err != nil {
		return internal.User{}, err
	}
	u, err := internal.ParseUserRecord(raw)
	if err != nil {
		return internal.User{}, c.malformed(CollectionUsers, "get", err)
	}
	return u, nil
}

// GetConversation loads one conversation by id
func (c *Client) GetConversation(ctx context.Context, conversationID string) (internal.Conversation, error) {
	if err := internal.ValidateRecordID(conversationID); err != nil {
		return internal.Conversation{}, err
	}
	var raw json.RawMessage
	err := c.do(ctx, request{
		collection: CollectionConversations,
		op:         "get",
		method:     http.MethodGet,
		path:       "/api/collections/conversations/records/" + url.PathEscape(conversationID),
		auth:       true,
	}, &raw)
	if err != nil {
		return internal.Conversation{}, err
	}
	conv, err := internal.ParseConversationRecord(raw)
	if err != nil {
		return internal.Conversation{}, c.malformed(CollectionConversations, "get", err)
	}
	return conv, nil
}

// SendMessage creates a message. A request with an attachment is sent as
// multipart form data.
func (c *Client) SendMessage(ctx context.Context, req internal.SendRequest) (internal.Message, error) {
	if err := req.Validate(); err != nil {
		return internal.Message{}, err
	}
	if err := internal.ValidateRecordID(req.ConversationID); err != nil {
		return internal.Message{}, err
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	fields := map[string]string{
		"conversation": req.ConversationID,
		"sender":       req.SenderID,
		"content":      req.Text,
		"timestamp":    internal.FormatTimestamp(ts),
	}

	r := request{
		collection: CollectionMessages,
		op:         "create",
		method:     http.MethodPost,
		path:       "/api/collections/messages/records",
		auth:       true,
	}
	if req.Attachment != nil && req.Attachment.Filename != "" {
		body, contentType, err := c.multipartBody(fields, req.Attachment)
		if err != nil {
			return internal.Message{}, err
		}
		r.body, r.contentType = body, contentType
	} else {
		body, err := json.Marshal(fields)
		if err != nil {
			return internal.Message{}, fmt.Errorf("failed to marshal request: %w", err)
		}
		r.body, r.contentType = body, "application/json"
	}

	var raw json.RawMessage
	if err := c.do(ctx, r, &raw); err != nil {
		return internal.Message{}, err
	}
	m, err := internal.ParseMessageRecord(raw)
	if err != nil {
		return internal.Message{}, c.malformed(CollectionMessages, "create", err)
	}
	return m, nil
}

func (c *Client) multipartBody(fields map[string]string, att *internal.Attachment) ([]byte, string, error) {
	size := int64(len(att.Data))
	if c.maxUpload > 0 && size > c.maxUpload {
		return nil, "", &internal.ValidationError{
			Field:  "attachment",
			Reason: fmt.Sprintf("%s is %s, the limit is %s", att.Filename, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(c.maxUpload))),
		}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, key := range []string{"conversation", "sender", "content", "timestamp"} {
		if err := w.WriteField(key, fields[key]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachments"; filename=%q`, filepath.Base(att.Filename)))
	header.Set("Content-Type", mimetype.Detect(att.Data).String())
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(att.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// CreateConversation creates a conversation from a prepared request
func (c *Client) CreateConversation(ctx context.Context, nc internal.NewConversation) (internal.Conversation, error) {
	switch {
	case len(nc.Participants) == 0:
		return internal.Conversation{}, &internal.ValidationError{Field: "participants", Reason: "is required"}
	case nc.IsGroup && strings.TrimSpace(nc.Name) == "":
		return internal.Conversation{}, &internal.ValidationError{Field: "name", Reason: "group name required"}
	case nc.IsGroup && len(nc.Participants) < 2:
		return internal.Conversation{}, &internal.ValidationError{Field: "participants", Reason: "a group needs at least two participants"}
	}
	for _, p := range nc.Participants {
		if err := internal.ValidateRecordID(p); err != nil {
			return internal.Conversation{}, err
		}
	}

	body, err := json.Marshal(map[string]interface{}{
		"name":         nc.Name,
		"isGroup":      nc.IsGroup,
		"participants": nc.Participants,
	})
	if err != nil {
		return internal.Conversation{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var raw json.RawMessage
	err = c.do(ctx, request{
		collection:  CollectionConversations,
		op:          "create",
		method:      http.MethodPost,
		path:        "/api/collections/conversations/records",
		body:        body,
		contentType: "application/json",
		auth:        true,
	}, &raw)
	if err != nil {
		return internal.Conversation{}, err
	}
	conv, err := internal.ParseConversationRecord(raw)
	if err != nil {
		return internal.Conversation{}, c.malformed(CollectionConversations, "create", err)
	}
	return conv, nil
}

// fullList fetches every page of a collection query
func (c *Client) fullList(ctx context.Context, collection, filter, sort string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("perPage", strconv.Itoa(c.pageSize))
		q.Set("skipTotal", "0")
		if filter != "" {
			q.Set("filter", filter)
		}
		if sort != "" {
			q.Set("sort", sort)
		}

		var resp listResponse
		err := c.do(ctx, request{
			collection: collection,
			op:         "list",
			method:     http.MethodGet,
			path:       "/api/collections/" + collection + "/records",
			query:      q,
			auth:       true,
		}, &resp)
		if err != nil {
			return nil, err
		}

		items = append(items, resp.Items...)
		if len(resp.Items) == 0 || page >= resp.TotalPages {
			break
		}
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, r request, out interface{}) error {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		httpReq.Header.Set("Content-Type", r.contentType)
	}
	if r.auth && c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			httpReq.Header.Set("Authorization", token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.transportError(ctx, r, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(ctx, r, fmt.Errorf("failed to read response: %w", err))
	}

	internal.Logger().Debug().
		Str("method", r.method).
		Str("path", r.path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("record request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(r, resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return c.malformed(r.collection, r.op, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, r request, err error) error {
	kind := internal.ErrBackendUnavailable
	if ctx.Err() != nil {
		kind = internal.ErrCancelled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = internal.ErrBackendUnavailable
		}
		err = ctx.Err()
	}
	return &internal.RecordError{Collection: r.collection, Op: r.op, Kind: kind, Err: err}
}

func (c *Client) malformed(collection, op string, err error) error {
	return &internal.RecordError{Collection: collection, Op: op, Kind: internal.ErrBackendUnavailable, Err: err}
}

// KindForStatus maps an HTTP status to an error kind
func KindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return internal.ErrAuthExpired
	case status == http.StatusTooManyRequests || status >= 500:
		return internal.ErrBackendUnavailable
	case status >= 400:
		return internal.ErrValidationRejected
	default:
		return internal.ErrBackendUnavailable
	}
}

func statusError(r request, status int, body []byte) error {
	recErr := &internal.RecordError{
		Collection: r.collection,
		Op:         r.op,
		Status:     status,
		Kind:       KindForStatus(status),
	}

	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil {
		recErr.Message = apiErr.Message
		if len(apiErr.Data) > 0 {
			recErr.Fields = make(map[string]string, len(apiErr.Data))
			for field, detail := range apiErr.Data {
				recErr.Fields[field] = detail.Message
			}
		}
	} else if len(body) > 0 {
		recErr.Message = strings.TrimSpace(string(body))
	}
	return recErr
}
