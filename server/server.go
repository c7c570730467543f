// Package server exposes the execution engine over HTTP: a streaming
// execute endpoint, resume/cancel for paused executions, usage snapshots,
// and Prometheus metrics.
package server

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ellworks/ellflow/flow"
	"github.com/ellworks/ellflow/flow/ratelimit"
	"github.com/ellworks/ellflow/flow/store"
)

// Config assembles the server's collaborators.
type Config struct {
	Gate     *ratelimit.Gate
	Store    store.Store
	Registry flow.Registry
	Metrics  *flow.Metrics
	Logger   zerolog.Logger

	// NodeTimeout bounds each runner invocation. Zero disables timeouts.
	NodeTimeout time.Duration
}

// Server routes execution requests into the engine.
type Server struct {
	cfg Config
	log zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// session tracks one in-flight execution so resume and cancel requests can
// reach the handler goroutine that owns it.
type session struct {
	executor *flow.Executor
	answers  chan string
	cancel   chan struct{}
	once     sync.Once
}

func (s *session) requestCancel() {
	s.once.Do(func() { close(s.cancel) })
}

// New creates a server.
func New(cfg Config) *Server {
	return &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: make(map[string]*session),
	}
}

// Handler returns the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/executions", s.handleExecute)
	mux.HandleFunc("POST /api/v1/executions/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /api/v1/executions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/v1/usage", s.handleUsage)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.logRequests(mux)
}

// logRequests is the zerolog access-log middleware.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(started)).
			Msg("request")
	})
}

func (s *Server) registerSession(id string, sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sess
}

func (s *Server) lookupSession(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) dropSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// handleResume delivers a user answer to a paused execution.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown execution"})
		return
	}
	var body struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	if !sess.executor.IsAwaitingInput() {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "execution is not awaiting input"})
		return
	}
	select {
	case sess.answers <- body.Answer:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "resuming"})
	default:
		writeJSON(w, http.StatusConflict, map[string]any{"error": "resume already pending"})
	}
}

// handleCancel aborts an in-flight execution.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown execution"})
		return
	}
	sess.executor.Cancel()
	sess.requestCancel()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "cancelling"})
}

// handleUsage reports the caller's remaining quota.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	teacherID := callerTeacher(r)
	if teacherID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "teacher identity required"})
		return
	}
	snapshot, err := s.cfg.Gate.UsageStats(r.Context(), teacherID)
	if err != nil {
		s.log.Error().Err(err).Msg("usage snapshot failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "usage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// callerTeacher extracts the opaque caller identity supplied by the
// authentication layer.
func callerTeacher(r *http.Request) string {
	return r.Header.Get("X-Teacher-Id")
}

func callerClassroom(r *http.Request) string {
	return r.Header.Get("X-Classroom-Id")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func newSessionID() string {
	return uuid.NewString()
}
