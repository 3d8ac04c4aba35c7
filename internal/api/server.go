// Package api is the REST surface of the daemon: session management,
// ticket search, test case generation, and record export, all consumed
// by the embedded browser page or testcraftctl.
package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/testcraft-io/testcraft/internal/batch"
	"github.com/testcraft-io/testcraft/internal/config"
	"github.com/testcraft-io/testcraft/internal/generate"
	"github.com/testcraft-io/testcraft/internal/logbuf"
	"github.com/testcraft-io/testcraft/internal/session"
	"github.com/testcraft-io/testcraft/internal/tracker"
	"github.com/testcraft-io/testcraft/pkg/protocol"
)

//go:embed static/index.html
var staticFS embed.FS

// TrackerClient is what the handlers need from the Jira boundary.
// *tracker.Client implements it; tests substitute a mock.
type TrackerClient interface {
	Search(ctx context.Context, project, status string, max int) ([]protocol.TicketRef, error)
	FetchDetail(ctx context.Context, key string) (protocol.TicketDetail, error)
	AddComment(ctx context.Context, key, body string) error
	Myself(ctx context.Context) (string, error)
}

// TrackerFactory builds a tracker client from session settings. Clients
// are per-session because credentials are.
type TrackerFactory func(cfg config.TrackerConfig) (TrackerClient, error)

// GeneratorFactory builds a generation client from session settings.
type GeneratorFactory func(cfg config.GenerationConfig) (generate.Generator, error)

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth; empty disables auth
}

// Server is the testcraft REST API server.
type Server struct {
	cfg          Config
	defaults     session.Settings
	sessions     *session.Manager
	jobs         *batch.Registry
	newTracker   TrackerFactory
	newGenerator GeneratorFactory
	logger       *slog.Logger
	logs         *logbuf.Buffer
	srv          *http.Server
}

// NewServer creates the API server. logs may be nil.
func NewServer(cfg Config, defaults session.Settings, newTracker TrackerFactory, newGenerator GeneratorFactory, logger *slog.Logger, logs *logbuf.Buffer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:          cfg,
		defaults:     defaults,
		sessions:     session.NewManager(),
		jobs:         batch.NewRegistry(),
		newTracker:   newTracker,
		newGenerator: newGenerator,
		logger:       logger,
		logs:         logs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/defaults", s.requireAuth(s.handleDefaults))
	mux.HandleFunc("POST /api/sessions", s.requireAuth(s.handleCreateSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.requireAuth(s.withSession(s.handleGetSession)))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.requireAuth(s.withSession(s.handleDeleteSession)))
	mux.HandleFunc("POST /api/sessions/{id}/tracker/test", s.requireAuth(s.withSession(s.handleTrackerTest)))
	mux.HandleFunc("POST /api/sessions/{id}/tickets/search", s.requireAuth(s.withSession(s.handleTicketSearch)))
	mux.HandleFunc("GET /api/sessions/{id}/tickets", s.requireAuth(s.withSession(s.handleTicketList)))
	mux.HandleFunc("GET /api/sessions/{id}/tickets/{key}", s.requireAuth(s.withSession(s.handleTicketDetail)))
	mux.HandleFunc("POST /api/sessions/{id}/generate", s.requireAuth(s.withSession(s.handleGenerate)))
	mux.HandleFunc("POST /api/sessions/{id}/batch", s.requireAuth(s.withSession(s.handleBatch)))
	mux.HandleFunc("GET /api/sessions/{id}/batch/{job}", s.requireAuth(s.withSession(s.handleBatchStatus)))
	mux.HandleFunc("GET /api/sessions/{id}/records", s.requireAuth(s.withSession(s.handleRecordList)))
	mux.HandleFunc("GET /api/sessions/{id}/records/{key}", s.requireAuth(s.withSession(s.handleRecordGet)))
	mux.HandleFunc("GET /api/sessions/{id}/records/{key}/export", s.requireAuth(s.withSession(s.handleRecordExport)))
	mux.HandleFunc("GET /api/sessions/{id}/records/{key}/html", s.requireAuth(s.withSession(s.handleRecordHTML)))
	mux.HandleFunc("POST /api/sessions/{id}/records/{key}/comment", s.requireAuth(s.withSession(s.handleRecordComment)))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// withSession resolves the {id} path segment to a live session.
func (s *Server) withSession(next func(http.ResponseWriter, *http.Request, *session.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.Get(r.PathValue("id"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		next(w, r, sess)
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto status codes. Every failure
// becomes a user-visible message; nothing crashes the request.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		missing  *config.MissingFieldError
		trackErr *tracker.Error
		genErr   *generate.Error
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &missing):
		status = http.StatusBadRequest
	case errors.As(err, &trackErr), errors.As(err, &genErr):
		status = http.StatusBadGateway
	case errors.Is(err, protocol.ErrMissingKey):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
