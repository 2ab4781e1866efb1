package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// FakeBackend is an in-process stand-in for the record service. It serves
// the records API, file storage, the SSE realtime endpoint and a WebSocket
// relay of the same change feed.
type FakeBackend struct {
	URL    string
	Echo   *echo.Echo
	server *httptest.Server
	closed sync.Once

	mu          sync.Mutex
	collections map[string][]Record
	passwords   map[string]string
	tokens      map[string]string
	files       map[string][]byte
	uploads     []Upload
	requests    []string
	failStatus  int
	failBody    string
	listHook    func(collection string)
	nextID      int

	subMu     sync.Mutex
	sseSubs   map[string]*sseSubscriber
	wsSubs    map[*wsSubscriber]struct{}
	subChange chan struct{}
}

// Upload describes a file received by the fake backend
type Upload struct {
	Collection  string
	Field       string
	Filename    string
	ContentType string
	Size        int
}

type sseEvent struct {
	name string
	data []byte
}

type sseSubscriber struct {
	id     string
	topics map[string]bool
	events chan sseEvent
}

type wsSubscriber struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	topics  map[string]bool
}

// NewFakeBackend starts a fake backend that is stopped when the test ends
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	f := &FakeBackend{
		collections: make(map[string][]Record),
		passwords:   make(map[string]string),
		tokens:      make(map[string]string),
		files:       make(map[string][]byte),
		sseSubs:     make(map[string]*sseSubscriber),
		wsSubs:      make(map[*wsSubscriber]struct{}),
		subChange:   make(chan struct{}, 64),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(f.recordRequest)

	e.GET("/api/health", f.handleHealth)
	e.POST("/api/collections/users/auth-with-password", f.handleAuthWithPassword)
	e.POST("/api/collections/users/auth-refresh", f.handleAuthRefresh)
	e.GET("/api/collections/:collection/records", f.handleList)
	e.GET("/api/collections/:collection/records/:id", f.handleView)
	e.POST("/api/collections/:collection/records", f.handleCreate)
	e.GET("/api/files/:collection/:id/:name", f.handleFile)
	e.GET("/api/realtime", f.handleRealtimeConnect)
	e.POST("/api/realtime", f.handleRealtimeSubscribe)
	e.GET("/api/realtime/ws", f.handleWebSocket)

	f.Echo = e
	f.server = httptest.NewServer(e)
	f.URL = f.server.URL
	t.Cleanup(f.Close)
	return f
}

// Close stops the server and disconnects realtime clients
func (f *FakeBackend) Close() {
	f.closed.Do(f.shutdown)
}

func (f *FakeBackend) shutdown() {
	f.DropRealtime()
	f.server.CloseClientConnections()
	f.server.Close()
}

// DropRealtime disconnects every realtime client, as a server restart would
func (f *FakeBackend) DropRealtime() {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	for _, s := range f.sseSubs {
		close(s.events)
	}
	f.sseSubs = make(map[string]*sseSubscriber)
	for ws := range f.wsSubs {
		_ = ws.conn.Close()
	}
	f.wsSubs = make(map[*wsSubscriber]struct{})
}

// WebSocketURL returns the ws:// address of the relay endpoint
func (f *FakeBackend) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(f.URL, "http") + "/api/realtime/ws"
}

// AddUser stores a user record and its password
func (f *FakeBackend) AddUser(rec Record, password string) {
	f.AddRecord("users", rec)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwords[rec.Str("username")] = password
}

// AddRecord stores a record without publishing an event
func (f *FakeBackend) AddRecord(collection string, rec Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[collection] = append(f.collections[collection], rec)
}

// Records returns a copy of the stored records of a collection
func (f *FakeBackend) Records(collection string) []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Record(nil), f.collections[collection]...)
}

// IssueToken returns a valid auth token for userID
func (f *FakeBackend) IssueToken(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "tok_" + uuid.NewString()
	f.tokens[token] = userID
	return token
}

// RevokeTokens invalidates every issued token
func (f *FakeBackend) RevokeTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = make(map[string]string)
}

// Uploads returns the files received so far
func (f *FakeBackend) Uploads() []Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Upload(nil), f.uploads...)
}

// Requests returns "METHOD path?query" for every request received
func (f *FakeBackend) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// FailWith makes every records request answer with status and body until
// cleared with status 0
func (f *FakeBackend) FailWith(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus = status
	f.failBody = body
}

// OnList registers a hook run before every list response
func (f *FakeBackend) OnList(hook func(collection string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHook = hook
}

// Publish sends a change event to every realtime subscriber of collection
func (f *FakeBackend) Publish(collection, action string, rec Record) {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	for _, s := range f.sseSubs {
		for topic := range s.topics {
			if !topicMatches(topic, collection) {
				continue
			}
			data, _ := json.Marshal(map[string]interface{}{"action": action, "record": rec})
			select {
			case s.events <- sseEvent{name: topic, data: data}:
			case <-time.After(time.Second):
			}
		}
	}
	for ws := range f.wsSubs {
		for topic := range ws.topics {
			if !topicMatches(topic, collection) {
				continue
			}
			ws.writeMu.Lock()
			_ = ws.conn.WriteJSON(map[string]interface{}{
				"type": "event", "topic": topic, "action": action, "record": rec,
			})
			ws.writeMu.Unlock()
		}
	}
}

// SubscriberCount returns the number of topic subscriptions across clients
func (f *FakeBackend) SubscriberCount() int {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	n := 0
	for _, s := range f.sseSubs {
		n += len(s.topics)
	}
	for ws := range f.wsSubs {
		n += len(ws.topics)
	}
	return n
}

// WaitForSubscribers waits until at least n topic subscriptions exist
func (f *FakeBackend) WaitForSubscribers(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for f.SubscriberCount() < n {
		select {
		case <-f.subChange:
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out waiting for %d realtime subscriber(s), have %d", n, f.SubscriberCount())
		}
	}
}

func (f *FakeBackend) notifySubChange() {
	select {
	case f.subChange <- struct{}{}:
	default:
	}
}

func topicMatches(topic, collection string) bool {
	return topic == collection || topic == collection+"/*"
}

func (f *FakeBackend) recordRequest(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := c.Request()
		entry := r.Method + " " + r.URL.Path
		if r.URL.RawQuery != "" {
			entry += "?" + r.URL.RawQuery
		}
		f.mu.Lock()
		f.requests = append(f.requests, entry)
		f.mu.Unlock()
		return next(c)
	}
}

func apiError(c echo.Context, status int, message string, data map[string]interface{}) error {
	if data == nil {
		data = map[string]interface{}{}
	}
	return c.JSON(status, map[string]interface{}{"code": status, "message": message, "data": data})
}

func fieldError(field, code, message string) map[string]interface{} {
	return map[string]interface{}{field: map[string]string{"code": code, "message": message}}
}

// authUser returns the user id behind the request token
func (f *FakeBackend) authUser(c echo.Context) (string, bool) {
	token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
	if token == "" {
		return "", false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[token]
	return id, ok
}

func (f *FakeBackend) failure() (int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failStatus, f.failBody
}

func (f *FakeBackend) guard(c echo.Context) error {
	if status, body := f.failure(); status != 0 {
		return c.Blob(status, echo.MIMEApplicationJSON, []byte(body))
	}
	if _, ok := f.authUser(c); !ok {
		return apiError(c, http.StatusUnauthorized, "The request requires valid record authorization token.", nil)
	}
	return nil
}

func (f *FakeBackend) handleHealth(c echo.Context) error {
	if status, body := f.failure(); status != 0 {
		return c.Blob(status, echo.MIMEApplicationJSON, []byte(body))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"code": 200, "message": "API is healthy.", "data": map[string]interface{}{}})
}

func (f *FakeBackend) findUserByUsername(username string) (Record, bool) {
	for _, u := range f.collections["users"] {
		if u.Str("username") == username {
			return u, true
		}
	}
	return nil, false
}

func (f *FakeBackend) handleAuthWithPassword(c echo.Context) error {
	var body struct {
		Identity string `json:"identity"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return apiError(c, http.StatusBadRequest, "Failed to read request data.", nil)
	}
	if body.Identity == "" || body.Password == "" {
		return apiError(c, http.StatusBadRequest, "Something went wrong while processing your request.",
			fieldError("identity", "validation_required", "Cannot be blank."))
	}

	f.mu.Lock()
	user, ok := f.findUserByUsername(body.Identity)
	valid := ok && f.passwords[body.Identity] == body.Password
	f.mu.Unlock()
	if !valid {
		return apiError(c, http.StatusBadRequest, "Failed to authenticate.", nil)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"token": f.IssueToken(user.ID()), "record": user})
}

func (f *FakeBackend) handleAuthRefresh(c echo.Context) error {
	userID, ok := f.authUser(c)
	if !ok {
		return apiError(c, http.StatusUnauthorized, "The request requires valid record authorization token.", nil)
	}
	f.mu.Lock()
	var user Record
	for _, u := range f.collections["users"] {
		if u.ID() == userID {
			user = u
		}
	}
	f.mu.Unlock()
	if user == nil {
		return apiError(c, http.StatusNotFound, "Missing auth record context.", nil)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"token": f.IssueToken(userID), "record": user})
}

var filterTermPattern = regexp.MustCompile(`(\w+)\s*(=|~)\s*"((?:[^"\\]|\\.)*)"`)

type filterTerm struct {
	field, op, value string
}

func parseFilter(filter string) []filterTerm {
	var terms []filterTerm
	for _, m := range filterTermPattern.FindAllStringSubmatch(filter, -1) {
		value := strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(m[3])
		terms = append(terms, filterTerm{field: m[1], op: m[2], value: value})
	}
	return terms
}

func fieldStrings(v interface{}) []string {
	switch x := v.(type) {
	case string:
		return []string{x}
	case []string:
		return x
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (t filterTerm) matches(rec Record) bool {
	values := fieldStrings(rec[t.field])
	for _, v := range values {
		if t.op == "=" && v == t.value {
			return true
		}
		if t.op == "~" && strings.Contains(v, t.value) {
			return true
		}
	}
	return false
}

func (f *FakeBackend) handleList(c echo.Context) error {
	if err := f.guard(c); err != nil || c.Response().Committed {
		return err
	}
	collection := c.Param("collection")

	f.mu.Lock()
	hook := f.listHook
	f.mu.Unlock()
	if hook != nil {
		hook(collection)
	}

	terms := parseFilter(c.QueryParam("filter"))
	f.mu.Lock()
	var items []Record
	for _, rec := range f.collections[collection] {
		ok := true
		for _, term := range terms {
			if !term.matches(rec) {
				ok = false
				break
			}
		}
		if ok {
			items = append(items, rec)
		}
	}
	f.mu.Unlock()

	if sortExpr := c.QueryParam("sort"); sortExpr != "" {
		desc := strings.HasPrefix(sortExpr, "-")
		field := strings.TrimPrefix(strings.TrimPrefix(sortExpr, "-"), "+")
		sort.SliceStable(items, func(i, j int) bool {
			a, b := items[i].Str(field), items[j].Str(field)
			if desc {
				return a > b
			}
			return a < b
		})
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(c.QueryParam("perPage"))
	if perPage < 1 {
		perPage = 30
	}
	total := len(items)
	totalPages := (total + perPage - 1) / perPage
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"page":       page,
		"perPage":    perPage,
		"totalItems": total,
		"totalPages": totalPages,
		"items":      append([]Record{}, items[start:end]...),
	})
}

func (f *FakeBackend) handleView(c echo.Context) error {
	if err := f.guard(c); err != nil || c.Response().Committed {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.collections[c.Param("collection")] {
		if rec.ID() == c.Param("id") {
			return c.JSON(http.StatusOK, rec)
		}
	}
	return apiError(c, http.StatusNotFound, "The requested resource wasn't found.", nil)
}

func (f *FakeBackend) newID() string {
	f.nextID++
	return fmt.Sprintf("rec%012d", f.nextID)
}

func (f *FakeBackend) handleCreate(c echo.Context) error {
	if err := f.guard(c); err != nil || c.Response().Committed {
		return err
	}
	collection := c.Param("collection")
	rec := Record{}
	var files []struct {
		name string
		data []byte
	}

	if strings.HasPrefix(c.Request().Header.Get("Content-Type"), echo.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return apiError(c, http.StatusBadRequest, "Failed to read multipart data.", nil)
		}
		for key, values := range form.Value {
			if len(values) > 0 {
				rec[key] = values[0]
			}
		}
		for field, headers := range form.File {
			for _, fh := range headers {
				src, err := fh.Open()
				if err != nil {
					return err
				}
				data, err := io.ReadAll(src)
				src.Close()
				if err != nil {
					return err
				}
				name := filepath.Base(fh.Filename)
				files = append(files, struct {
					name string
					data []byte
				}{name, data})
				f.mu.Lock()
				f.uploads = append(f.uploads, Upload{
					Collection: collection, Field: field, Filename: name,
					ContentType: fh.Header.Get("Content-Type"), Size: len(data),
				})
				f.mu.Unlock()
			}
		}
	} else if err := json.NewDecoder(c.Request().Body).Decode(&rec); err != nil {
		return apiError(c, http.StatusBadRequest, "Failed to read request data.", nil)
	}

	switch collection {
	case "messages":
		if rec.Str("conversation") == "" {
			return apiError(c, http.StatusBadRequest, "Failed to create record.",
				fieldError("conversation", "validation_required", "Missing required value."))
		}
	case "conversations":
		if len(fieldStrings(rec["participants"])) == 0 {
			return apiError(c, http.StatusBadRequest, "Failed to create record.",
				fieldError("participants", "validation_required", "Missing required value."))
		}
	}

	now := backendTime(time.Now())
	f.mu.Lock()
	rec["id"] = f.newID()
	rec["collectionId"] = "pbc_" + collection
	rec["collectionName"] = collection
	rec["created"] = now
	rec["updated"] = now
	if len(files) > 0 {
		names := make([]string, 0, len(files))
		for _, file := range files {
			names = append(names, file.name)
			f.files[collection+"/"+rec.ID()+"/"+file.name] = file.data
			f.files["pbc_"+collection+"/"+rec.ID()+"/"+file.name] = file.data
		}
		rec["attachments"] = names
	}
	f.collections[collection] = append(f.collections[collection], rec)
	f.mu.Unlock()

	f.Publish(collection, "create", rec)
	return c.JSON(http.StatusOK, rec)
}

func (f *FakeBackend) handleFile(c echo.Context) error {
	f.mu.Lock()
	data, ok := f.files[c.Param("collection")+"/"+c.Param("id")+"/"+c.Param("name")]
	f.mu.Unlock()
	if !ok {
		return apiError(c, http.StatusNotFound, "The requested resource wasn't found.", nil)
	}
	return c.Blob(http.StatusOK, http.DetectContentType(data), data)
}

func (f *FakeBackend) handleRealtimeConnect(c echo.Context) error {
	sub := &sseSubscriber{
		id:     uuid.NewString(),
		topics: make(map[string]bool),
		events: make(chan sseEvent, 64),
	}
	f.subMu.Lock()
	f.sseSubs[sub.id] = sub
	f.subMu.Unlock()
	defer func() {
		f.subMu.Lock()
		if _, ok := f.sseSubs[sub.id]; ok {
			delete(f.sseSubs, sub.id)
		}
		f.subMu.Unlock()
		f.notifySubChange()
	}()

	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "id:%s\nevent:PB_CONNECT\ndata:{\"clientId\":%q}\n\n", sub.id, sub.id)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.events:
			if !ok {
				return nil
			}
			fmt.Fprintf(w, "id:%s\nevent:%s\ndata:%s\n\n", sub.id, ev.name, ev.data)
			w.Flush()
		}
	}
}

func (f *FakeBackend) handleRealtimeSubscribe(c echo.Context) error {
	var body struct {
		ClientID      string   `json:"clientId"`
		Subscriptions []string `json:"subscriptions"`
	}
	if err := c.Bind(&body); err != nil {
		return apiError(c, http.StatusBadRequest, "Failed to read request data.", nil)
	}
	if c.Request().Header.Get("Authorization") != "" {
		if _, ok := f.authUser(c); !ok {
			return apiError(c, http.StatusForbidden, "The current and the previous request authorization don't match.", nil)
		}
	}

	f.subMu.Lock()
	sub, ok := f.sseSubs[body.ClientID]
	if ok {
		sub.topics = make(map[string]bool)
		for _, topic := range body.Subscriptions {
			sub.topics[topic] = true
		}
	}
	f.subMu.Unlock()
	if !ok {
		return apiError(c, http.StatusNotFound, "Missing or invalid client id.", nil)
	}
	f.notifySubChange()
	return c.NoContent(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (f *FakeBackend) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	sub := &wsSubscriber{conn: conn, topics: make(map[string]bool)}
	f.subMu.Lock()
	f.wsSubs[sub] = struct{}{}
	f.subMu.Unlock()
	defer func() {
		f.subMu.Lock()
		delete(f.wsSubs, sub)
		f.subMu.Unlock()
		f.notifySubChange()
		conn.Close()
	}()

	for {
		var msg struct {
			Type      string   `json:"type"`
			RequestID string   `json:"request_id"`
			Topics    []string `json:"topics"`
			Token     string   `json:"token"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return nil
		}

		reply := map[string]interface{}{"request_id": msg.RequestID}
		switch msg.Type {
		case "subscribe":
			f.mu.Lock()
			_, valid := f.tokens[msg.Token]
			f.mu.Unlock()
			if !valid {
				reply["type"] = "error"
				reply["code"] = "unauthorized"
				reply["message"] = "invalid token"
				break
			}
			f.subMu.Lock()
			for _, topic := range msg.Topics {
				sub.topics[topic] = true
			}
			f.subMu.Unlock()
			reply["type"] = "subscribe_ack"
			reply["topics"] = msg.Topics
		case "unsubscribe":
			f.subMu.Lock()
			for _, topic := range msg.Topics {
				delete(sub.topics, topic)
			}
			f.subMu.Unlock()
			reply["type"] = "unsubscribe_ack"
		default:
			reply["type"] = "error"
			reply["code"] = "invalid_message"
			reply["message"] = "unknown message type: " + msg.Type
		}

		sub.writeMu.Lock()
		err := conn.WriteJSON(reply)
		sub.writeMu.Unlock()
		if err != nil {
			return nil
		}
		f.notifySubChange()
	}
}
