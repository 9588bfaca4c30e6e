// Package api implements the TaskPilot HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/taskpilot/taskpilot/internal/agent"
	"github.com/taskpilot/taskpilot/internal/auth"
	"github.com/taskpilot/taskpilot/internal/buildinfo"
	"github.com/taskpilot/taskpilot/internal/memory"
	"github.com/taskpilot/taskpilot/internal/task"
	"github.com/taskpilot/taskpilot/internal/web"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int

	users     *auth.Store
	tokens    *auth.Tokens
	tasks     *task.Store
	memory    *memory.Store
	loop      *agent.Loop
	compactor *memory.Compactor

	logger *slog.Logger
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, users *auth.Store, tokens *auth.Tokens, tasks *task.Store, mem *memory.Store, loop *agent.Loop, compactor *memory.Compactor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:   address,
		port:      port,
		users:     users,
		tokens:    tokens,
		tasks:     tasks,
		memory:    mem,
		loop:      loop,
		compactor: compactor,
		logger:    logger,
	}
}

// Handler builds the full route table. Exposed separately from Start
// so handler tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/signin", s.handleSignin)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	// Authenticated endpoints
	authed := http.NewServeMux()
	authed.HandleFunc("GET /api/tasks", s.handleTaskList)
	authed.HandleFunc("POST /api/tasks", s.handleTaskCreate)
	authed.HandleFunc("GET /api/tasks/{id}", s.handleTaskGet)
	authed.HandleFunc("PUT /api/tasks/{id}", s.handleTaskUpdate)
	authed.HandleFunc("DELETE /api/tasks/{id}", s.handleTaskDelete)
	authed.HandleFunc("POST /api/tasks/{id}/complete", s.handleTaskComplete)

	authed.HandleFunc("POST /api/chat", s.handleChat)

	authed.HandleFunc("GET /api/conversations", s.handleConversationList)
	authed.HandleFunc("GET /api/conversations/{id}", s.handleConversationGet)
	authed.HandleFunc("DELETE /api/conversations/{id}", s.handleConversationArchive)
	authed.HandleFunc("GET /api/conversations/{id}/tools", s.handleConversationTools)

	mux.Handle("/api/", auth.Middleware(s.tokens, authed))

	// Chat web UI
	web.RegisterRoutes(mux)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second, // chat turns can run several model calls
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]string{"error": message}, s.logger)
}

// taskError maps domain errors to HTTP responses. An authorization
// failure answers 404, the same as a nonexistent ID, so responses
// never reveal whether a task exists.
func (s *Server) taskError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *task.ValidationError:
		s.errorResponse(w, http.StatusBadRequest, e.Msg)
	case *task.AuthorizationError:
		s.errorResponse(w, http.StatusNotFound, "task not found")
	case *task.NotFoundError:
		s.errorResponse(w, http.StatusNotFound, e.Error())
	default:
		s.logger.Error("task operation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}
