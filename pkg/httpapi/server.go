// Package httpapi exposes account assets over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel/trace"

	"github.com/plaenen/assetlimits/pkg/middleware"
	"github.com/plaenen/assetlimits/pkg/runner"
)

// Server serves the REST API. It is a runner.Service.
type Server struct {
	addr     string
	accounts AccountService
	health   func(ctx context.Context) error
	logger   *slog.Logger
	tracer   trace.Tracer
	origins  []string

	router *chi.Mux
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
	failed   chan error
}

var (
	_ runner.Service         = (*Server)(nil)
	_ runner.FailureReporter = (*Server)(nil)
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for requests and lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTracer sets the tracer for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithHealthCheck backs GET /healthz. Without it the endpoint always reports ok.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.health = check
	}
}

// WithAllowedOrigins sets the CORS origins. Defaults to any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// New creates a server listening on addr once started.
func New(addr string, accounts AccountService, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		accounts: accounts,
		logger:   slog.Default(),
		origins:  []string{"*"},
		failed:   make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.Tracing(s.tracer))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Traceparent"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/accounts/{accountId}/assets", func(r chi.Router) {
		r.Get("/", s.handleFindAssets)
		r.Post("/", s.handleAssignAsset)
		r.Delete("/{assetId}", s.handleRemoveAsset)
	})
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Name implements runner.Service.
func (s *Server) Name() string {
	return "http"
}

// Start binds the listener and serves in the background. Serve errors are
// reported through Failed.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.failed <- err
		}
	}()

	s.logger.InfoContext(ctx, "HTTP server started", "addr", ln.Addr().String())
	return nil
}

// Stop waits for in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

// Failed implements runner.FailureReporter.
func (s *Server) Failed() <-chan error {
	return s.failed
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
