package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// SessionHeader carries the session id on streamable HTTP requests.
const SessionHeader = "Mcp-Session-Id"

// DefaultSessionID is used when a request names no session. Every anonymous
// caller shares it.
const DefaultSessionID = "default"

// SessionState is the lifecycle state of a session transport.
type SessionState int

const (
	SessionAbsent SessionState = iota
	SessionActive
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return "absent"
	}
}

// SessionInfo is a point-in-time view of one session.
type SessionInfo struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	Initialized bool      `json:"initialized"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// SessionTransport handles the requests of one HTTP session. Requests within
// a session may run concurrently.
type SessionTransport struct {
	id      string
	handler *Handler
	onClose func(id string, t *SessionTransport)
	now     func() time.Time
	logger  *slog.Logger

	mu           sync.Mutex
	state        SessionState
	initialized  bool
	initializing bool
	createdAt    time.Time
	lastSeen     time.Time
}

func (t *SessionTransport) ID() string {
	return t.id
}

func (t *SessionTransport) State() SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *SessionTransport) Info() SessionInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return SessionInfo{
		ID:          t.id,
		State:       t.state.String(),
		Initialized: t.initialized,
		CreatedAt:   t.createdAt,
		LastSeen:    t.lastSeen,
	}
}

// Close moves the transport to Closed and fires the removal callback once.
func (t *SessionTransport) Close() {
	t.mu.Lock()
	if t.state == SessionClosing || t.state == SessionClosed {
		t.mu.Unlock()
		return
	}
	t.state = SessionClosing
	t.mu.Unlock()

	if t.onClose != nil {
		t.onClose(t.id, t)
	}

	t.mu.Lock()
	t.state = SessionClosed
	t.mu.Unlock()
	t.logInfo("session_closed", "session", t.id)
}

// HandleRequest answers one POSTed JSON-RPC payload, single or batch. The
// session lock covers only the lifecycle checks; dispatch runs unlocked so a
// slow tool call does not hold up other requests on the same session.
func (t *SessionTransport) HandleRequest(ctx context.Context, w http.ResponseWriter, body []byte) {
	requests, batch, err := decodePayload(body)

	t.mu.Lock()
	if t.state != SessionActive {
		t.mu.Unlock()
		writeRPCJSON(w, http.StatusNotFound, errorResponse(nil, CodeSessionNotFound, "session not found", t.id))
		return
	}
	t.lastSeen = t.now()
	t.mu.Unlock()

	if errors.Is(err, errInvalidRequest) {
		writeRPCJSON(w, http.StatusBadRequest, errorResponse(envelopeID(body), CodeInvalidRequest, "invalid request", err.Error()))
		return
	}
	if err != nil {
		writeRPCJSON(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "parse error", err.Error()))
		return
	}
	if len(requests) == 0 {
		writeRPCJSON(w, http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, "invalid request", "empty batch"))
		return
	}

	isInit := false
	for _, req := range requests {
		if req.Method == "initialize" {
			isInit = true
		}
	}
	if isInit && len(requests) > 1 {
		writeRPCJSON(w, http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, "invalid request: only one initialization request is allowed", nil))
		return
	}
	if rejected := t.admit(isInit); rejected != nil {
		writeRPCJSON(w, http.StatusBadRequest, rejected)
		return
	}

	responses := make([]*Response, 0, len(requests))
	for _, req := range requests {
		if resp := t.handler.Handle(ctx, req); resp != nil {
			responses = append(responses, resp)
		}
	}

	if isInit {
		ok := len(responses) == 1 && responses[0].Error == nil
		t.mu.Lock()
		t.initializing = false
		t.initialized = ok
		t.mu.Unlock()
		if ok {
			t.logInfo("session_initialized", "session", t.id)
		}
		w.Header().Set(SessionHeader, t.id)
	}

	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if batch {
		writeRPCJSON(w, http.StatusOK, responses)
		return
	}
	writeRPCJSON(w, http.StatusOK, responses[0])
}

// admit checks the initialization handshake under the lock. An initialize
// request claims the session until its response is known, so a second
// concurrent initialize is rejected.
func (t *SessionTransport) admit(isInit bool) *Response {
	t.mu.Lock()
	defer t.mu.Unlock()
	if isInit {
		if t.initialized || t.initializing {
			return errorResponse(nil, CodeInvalidRequest, "invalid request: server already initialized", nil)
		}
		t.initializing = true
		return nil
	}
	if !t.initialized {
		return errorResponse(nil, CodeServerError, "bad request: server not initialized", nil)
	}
	return nil
}

var errInvalidRequest = errors.New("invalid request")

// decodePayload parses a single request or a batch. Well-formed JSON that does
// not fit the request shape is reported as errInvalidRequest.
func decodePayload(body []byte) ([]Request, bool, error) {
	trimmed := bytes.TrimSpace(body)
	var raw json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, false, err
	}
	if trimmed[0] == '[' {
		var batch []Request
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, true, fmt.Errorf("%w: %v", errInvalidRequest, err)
		}
		return batch, true, nil
	}
	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, false, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return []Request{req}, false, nil
}

func writeRPCJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (t *SessionTransport) logInfo(msg string, args ...any) {
	if t.logger != nil {
		t.logger.Info(msg, args...)
	}
}

// SessionTracker owns the session id to transport map. Lookup and creation
// happen under one lock so concurrent first requests for an id share a
// single transport.
type SessionTracker struct {
	handler *Handler
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*SessionTransport
}

func NewSessionTracker(handler *Handler) *SessionTracker {
	return &SessionTracker{
		handler:  handler,
		now:      time.Now,
		sessions: make(map[string]*SessionTransport),
	}
}

func (s *SessionTracker) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// GetOrCreate returns the live transport for id, creating it when absent.
// created reports whether a new transport was made.
func (s *SessionTracker) GetOrCreate(id string) (transport *SessionTransport, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.sessions[id]; ok {
		return t, false
	}
	now := s.now()
	t := &SessionTransport{
		id:        id,
		handler:   s.handler,
		onClose:   s.remove,
		now:       s.now,
		logger:    s.logger,
		state:     SessionActive,
		createdAt: now,
		lastSeen:  now,
	}
	s.sessions[id] = t
	if s.logger != nil {
		s.logger.Info("session_created", "session", id)
	}
	return t, true
}

func (s *SessionTracker) Get(id string) (*SessionTransport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sessions[id]
	return t, ok
}

// Close closes and removes the session. It reports false for unknown ids.
func (s *SessionTracker) Close(id string) bool {
	t, ok := s.Get(id)
	if !ok {
		return false
	}
	t.Close()
	return true
}

// CloseAll closes every live session.
func (s *SessionTracker) CloseAll() {
	s.mu.Lock()
	transports := make([]*SessionTransport, 0, len(s.sessions))
	for _, t := range s.sessions {
		transports = append(transports, t)
	}
	s.mu.Unlock()
	for _, t := range transports {
		t.Close()
	}
}

func (s *SessionTracker) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// List returns session snapshots sorted by id.
func (s *SessionTracker) List() []SessionInfo {
	s.mu.Lock()
	transports := make([]*SessionTransport, 0, len(s.sessions))
	for _, t := range s.sessions {
		transports = append(transports, t)
	}
	s.mu.Unlock()

	out := make([]SessionInfo, 0, len(transports))
	for _, t := range transports {
		out = append(out, t.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// remove deletes id only while it still maps to t, so a closing transport
// never evicts its replacement.
func (s *SessionTracker) remove(id string, t *SessionTransport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[id]; ok && current == t {
		delete(s.sessions, id)
	}
}
