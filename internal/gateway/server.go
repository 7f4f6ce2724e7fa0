// Package gateway serves the turnstream HTTP API: chat turn streams over
// server-sent events, cancellation, history and session management,
// workspace file access and slash commands, plus health and metrics
// endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"

	"github.com/haasonsaas/turnstream/internal/agent"
	"github.com/haasonsaas/turnstream/internal/cancellation"
	"github.com/haasonsaas/turnstream/internal/observability"
	"github.com/haasonsaas/turnstream/internal/sessions"
	"github.com/haasonsaas/turnstream/pkg/models"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address.
	// Default: 0.0.0.0:3001
	Addr string

	// ReadHeaderTimeout bounds the time to read request headers.
	// Default: 10 seconds
	ReadHeaderTimeout time.Duration

	// CORSOrigins lists allowed origins; "*" allows any.
	// Default: ["*"]
	CORSOrigins []string

	// CommandsDir holds a workspace's TOML prompt commands, relative to its
	// root. Default: .turnstream/commands
	CommandsDir string
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:3001"
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.CommandsDir == "" {
		cfg.CommandsDir = ".turnstream/commands"
	}
	return cfg
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics serves /metrics from m and records HTTP metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server is the HTTP API server.
type Server struct {
	cfg          Config
	store        *sessions.Store
	cancels      *cancellation.Registry
	orchestrator *agent.Orchestrator
	metrics      *observability.Metrics
	logger       *slog.Logger
	router       *mux.Router
	startTime    time.Time

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	serveDone  chan struct{}
}

// NewServer builds the router. Nothing listens until Start.
func NewServer(cfg Config, store *sessions.Store, cancels *cancellation.Registry, orchestrator *agent.Orchestrator, opts ...Option) *Server {
	s := &Server{
		cfg:          sanitizeConfig(cfg),
		store:        store,
		cancels:      cancels,
		orchestrator: orchestrator,
		logger:       slog.Default(),
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "gateway")
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware(s.logger, s.metrics))
	r.Use(requestContextMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(metricsMiddleware(s.metrics))
	r.Use(corsMiddleware(s.cfg.CORSOrigins))

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat/stream", s.handleChatStream).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/chat/cancel", s.handleCancel).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/chat/history", s.handleHistory).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/session", s.handleCreateSession).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/session/{id}", s.handleGetSession).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/session/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/session/{id}/workspace", s.handleRebindSession).Methods(http.MethodPut, http.MethodOptions)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/files/read", s.handleFileRead).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/files/list", s.handleFileList).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/files/search", s.handleFileSearch).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/commands/list", s.handleCommandList).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/commands/execute", s.handleCommandExecute).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/commands/help", s.handleCommandHelp).Methods(http.MethodPost, http.MethodOptions)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, "Not Found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	})
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	done := make(chan struct{})
	s.httpServer = server
	s.listener = listener
	s.serveDone = done

	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address, or the configured one before
// Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// Stop cancels every in-flight turn stream, shuts the HTTP server down and
// then releases all sessions. Errors from each step are aggregated.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.httpServer
	done := s.serveDone
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()

	var result *multierror.Error

	if n := s.cancels.CancelAll(); n > 0 {
		s.logger.Info("cancelled in-flight requests", "count", n)
	}
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("http shutdown: %w", err))
		}
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	if err := s.store.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("session store shutdown: %w", err))
	}
	return result.ErrorOrNil()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// The client may have disconnected.
		return
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, models.ErrorResponse{Error: msg})
}
