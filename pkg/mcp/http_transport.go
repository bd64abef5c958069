package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	httpShutdownTimeout = 5 * time.Second
	maxBodyBytes        = 4 << 20

	// TransportName is reported by the health endpoint.
	TransportName = "StreamableHTTP"

	requestIDHeader = "X-Request-Id"
)

// HTTPServer exposes the handler over streamable HTTP with one transport per
// session.
type HTTPServer struct {
	addr     string
	handler  *Handler
	sessions *SessionTracker
	auth     Authorizer
	logger   *slog.Logger

	newRequestID func() string
}

func NewHTTPServer(addr string, handler *Handler) *HTTPServer {
	return &HTTPServer{
		addr:         addr,
		handler:      handler,
		sessions:     NewSessionTracker(handler),
		newRequestID: uuid.NewString,
	}
}

func (s *HTTPServer) SetLogger(logger *slog.Logger) {
	s.logger = logger
	s.sessions.SetLogger(logger)
}

// SetAuthorizer restricts who may post to and delete sessions on /message.
func (s *HTTPServer) SetAuthorizer(auth Authorizer) {
	s.auth = auth
}

func (s *HTTPServer) Sessions() *SessionTracker {
	return s.sessions
}

func (s *HTTPServer) Addr() string {
	return s.addr
}

// Routes returns the HTTP handler with recovery applied to every route.
func (s *HTTPServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /message", s.authorize(s.handleMessage))
	mux.HandleFunc("DELETE /message", s.authorize(s.handleDeleteSession))
	mux.HandleFunc("/sse", s.handleSSE)
	return s.recoverer(mux)
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *HTTPServer) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully and
// closes every session.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logError("http_shutdown_failed", "error", err)
		}
		s.sessions.CloseAll()
	}()

	s.logInfo("http_listening", "addr", ln.Addr().String())
	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.handler.Info()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"name":      info.Name,
		"version":   info.Version,
		"transport": TransportName,
	})
}

func (s *HTTPServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	requestID := s.requestID(w, r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.logWarn("http_read_body_failed", "request_id", requestID, "error", err)
		writeRPCJSON(w, http.StatusBadRequest, errorResponse(nil, CodeParseError, "parse error", err.Error()))
		return
	}

	sessionID := sessionIDFrom(r, body)
	transport, created := s.sessions.GetOrCreate(sessionID)
	if created {
		s.logInfo("session_transport_created", "session", sessionID, "request_id", requestID)
	}
	s.logDebug("http_message", "session", sessionID, "request_id", requestID, "bytes", len(body))

	transport.HandleRequest(r.Context(), w, body)
}

func (s *HTTPServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.Header.Get(SessionHeader))
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "missing " + SessionHeader + " header",
		})
		return
	}
	if !s.sessions.Close(sessionID) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "session not found",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	s.logWarn("sse_endpoint_deprecated", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error":   "SSE transport is deprecated",
		"message": "Please use StreamableHTTP transport at /message endpoint",
	})
}

// sessionIDFrom picks the session id from the body's sessionId field, then
// the session header, then DefaultSessionID.
func sessionIDFrom(r *http.Request, body []byte) string {
	var probe struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &probe); err == nil {
		if id := strings.TrimSpace(probe.SessionID); id != "" {
			return id
		}
	}
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	return DefaultSessionID
}

func (s *HTTPServer) requestID(w http.ResponseWriter, r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" {
		id = s.newRequestID()
	}
	w.Header().Set(requestIDHeader, id)
	return id
}

func (s *HTTPServer) authorize(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth != nil {
			if err := s.auth.Allow(r.Context(), r.RemoteAddr); err != nil {
				s.logWarn("http_unauthorized", "remote", r.RemoteAddr, "error", err)
				writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
				return
			}
		}
		next(w, r)
	}
}

// recoverer turns a panicking handler into a 500 when nothing has been
// written yet.
func (s *HTTPServer) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logError("http_handler_panic", "path", r.URL.Path, "error", fmt.Sprint(rec))
				if !tw.wroteHeader {
					writeJSON(tw, http.StatusInternalServerError, map[string]string{
						"error": "Internal server error",
					})
				}
			}
		}()
		next.ServeHTTP(tw, r)
	})
}

type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *trackingWriter) WriteHeader(status int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *HTTPServer) logDebug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *HTTPServer) logInfo(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *HTTPServer) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *HTTPServer) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
