// Package embeddednats runs the embedded NATS server under the runner.
package embeddednats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	natsmsg "github.com/plaenen/assetlimits/pkg/messaging/nats"
	"github.com/plaenen/assetlimits/pkg/observability"
	"github.com/plaenen/assetlimits/pkg/runner"
)

// Service wraps an embedded NATS server as a runner.Service. It is used
// when no external NATS_URL is configured.
type Service struct {
	logger        runner.Logger
	tracer        trace.Tracer
	serverOptions []natsmsg.ServerOption

	mu     sync.RWMutex
	server *natsmsg.EmbeddedServer
}

// Option configures the NATS service.
type Option func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger runner.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer sets the OpenTelemetry tracer for the service.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithServerOptions passes options through to natsmsg.StartEmbeddedServer.
//
//	service := embeddednats.New(
//	    embeddednats.WithServerOptions(
//	        natsmsg.WithPort(4222),
//	        natsmsg.WithStoreDir("/var/lib/assetlimits/nats"),
//	    ),
//	)
func WithServerOptions(opts ...natsmsg.ServerOption) Option {
	return func(s *Service) {
		s.serverOptions = append(s.serverOptions, opts...)
	}
}

// New creates a new embedded NATS service for use with runner.
func New(opts ...Option) *Service {
	s := &Service{
		logger: runner.NewNoopLogger(),
		tracer: noop.NewTracerProvider().Tracer("embeddednats"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the service name for logging.
func (s *Service) Name() string {
	return "embedded-nats"
}

// Start starts the embedded NATS server.
func (s *Service) Start(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "embeddednats.Start")
	defer span.End()

	s.logger.Info("starting embedded NATS server")

	srv, err := natsmsg.StartEmbeddedServer(s.serverOptions...)
	if err != nil {
		observability.SetSpanError(ctx, err)
		s.logger.Error("failed to start embedded NATS", "error", err)
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	span.SetAttributes(attribute.String("nats.url", srv.URL()))
	s.logger.Info("embedded NATS server started", "url", srv.URL())
	return nil
}

// Stop shuts down the embedded NATS server.
func (s *Service) Stop(ctx context.Context) error {
	_, span := s.tracer.Start(ctx, "embeddednats.Stop")
	defer span.End()

	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	if srv != nil {
		s.logger.Info("stopping embedded NATS server")
		srv.Shutdown()
		s.logger.Info("embedded NATS server stopped")
	}
	return nil
}

// HealthCheck fails before Start and after Stop.
func (s *Service) HealthCheck(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "embeddednats.HealthCheck")
	defer span.End()

	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()

	var err error
	switch {
	case srv == nil:
		err = errors.New("nats server not started")
	case !srv.Running():
		err = errors.New("nats server not running")
	}
	if err != nil {
		observability.SetSpanError(ctx, err)
		return err
	}

	span.SetAttributes(attribute.Bool("healthy", true))
	return nil
}

// URL returns the NATS server connection URL, or "" before Start.
func (s *Service) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return ""
	}
	return s.server.URL()
}

// Server returns the underlying embedded server, or nil before Start.
func (s *Service) Server() *natsmsg.EmbeddedServer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.server
}

var (
	_ runner.Service       = (*Service)(nil)
	_ runner.HealthChecker = (*Service)(nil)
)
