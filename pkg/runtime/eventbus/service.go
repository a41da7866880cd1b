// Package eventbus connects the limiting service to NATS JetStream under the
// runner: it consumes limit changes and publishes suspicious events.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/plaenen/assetlimits/pkg/domain"
	natsmsg "github.com/plaenen/assetlimits/pkg/messaging/nats"
	"github.com/plaenen/assetlimits/pkg/observability"
	"github.com/plaenen/assetlimits/pkg/reporting"
	"github.com/plaenen/assetlimits/pkg/runner"
	"github.com/plaenen/assetlimits/pkg/security/credentials"
)

// ErrNotStarted is returned when the bus is used before Start.
var ErrNotStarted = errors.New("event bus not started")

// Config names the streams and subjects.
type Config struct {
	// URL is the NATS server URL. URLFunc, when set, is consulted at Start
	// instead, so the URL of an embedded server started earlier can be used.
	URL     string
	URLFunc func() string

	LimitChangesStream  string
	LimitChangesSubject string
	LimitChangesDurable string
	EventsStream        string
	EventsSubjectPrefix string

	// Storage for both streams. Defaults to file storage.
	Storage nats.StorageType
}

// DefaultConfig returns the production stream names.
func DefaultConfig() Config {
	return Config{
		URL:                 nats.DefaultURL,
		LimitChangesStream:  "LIMIT_CHANGES",
		LimitChangesSubject: "limit-changes",
		LimitChangesDurable: "assetlimits",
		EventsStream:        "SUSPICIOUS_EVENTS",
		EventsSubjectPrefix: "limiting.suspicious",
		Storage:             nats.FileStorage,
	}
}

// Service owns the NATS connection. It is a reporting.EventSink once started.
//
//	bus := eventbus.New(eventbus.WithConfig(cfg), eventbus.WithLogger(logger))
//	svc := limiting.NewService(accounts, limits, reporting.MultiSink{auditLog, bus})
//	bus.HandleLimitChanges(svc)
//
//	r := runner.New([]runner.Service{natsServer, bus, httpServer})
type Service struct {
	config      Config
	credentials credentials.Provider
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *observability.Metrics
	overrider   natsmsg.LimitOverrider

	mu       sync.RWMutex
	nc       *nats.Conn
	js       nats.JetStreamContext
	consumer *natsmsg.LimitChangeConsumer
	events   *natsmsg.EventPublisher
	changes  *natsmsg.LimitChangePublisher
}

var (
	_ runner.Service       = (*Service)(nil)
	_ runner.HealthChecker = (*Service)(nil)
	_ reporting.EventSink  = (*Service)(nil)
)

// Option configures the EventBus service.
type Option func(*Service)

// WithConfig sets the NATS configuration.
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithCredentials authenticates the connection.
func WithCredentials(provider credentials.Provider) Option {
	return func(s *Service) {
		s.credentials = provider
	}
}

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) Option {
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

// WithMetrics records message counts.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// New creates a new EventBus service for use with runner.
func New(opts ...Option) *Service {
	s := &Service{
		config:  DefaultConfig(),
		logger:  slog.Default(),
		tracer:  noop.NewTracerProvider().Tracer("eventbus"),
		metrics: observability.NoopMetrics(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// HandleLimitChanges makes Start subscribe to limit changes and apply them
// with overrider. Must be called before Start; without it the bus only
// publishes.
func (s *Service) HandleLimitChanges(overrider natsmsg.LimitOverrider) {
	s.overrider = overrider
}

// Name returns the service name for logging.
func (s *Service) Name() string {
	return "eventbus"
}

// Start connects, ensures both streams and starts the consumer.
func (s *Service) Start(ctx context.Context) (err error) {
	ctx, span := s.tracer.Start(ctx, "eventbus.Start")
	defer func() { observability.EndSpan(span, err) }()

	url := s.config.URL
	if s.config.URLFunc != nil {
		url = s.config.URLFunc()
	}
	s.logger.InfoContext(ctx, "starting eventbus service", "url", url)

	nc, err := natsmsg.Connect(ctx, url, s.credentials, nats.Name("assetlimits"))
	if err != nil {
		return err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	limitStream := natsmsg.LimitChangesStream(s.config.LimitChangesStream, s.config.LimitChangesSubject)
	eventStream := natsmsg.EventsStream(s.config.EventsStream, s.config.EventsSubjectPrefix)
	limitStream.Storage, eventStream.Storage = s.config.Storage, s.config.Storage

	for _, stream := range []natsmsg.StreamConfig{limitStream, eventStream} {
		if err := natsmsg.EnsureStream(js, stream); err != nil {
			nc.Close()
			return err
		}
	}

	var consumer *natsmsg.LimitChangeConsumer
	if s.overrider != nil {
		consumer = natsmsg.NewLimitChangeConsumer(js, s.overrider, natsmsg.ConsumerConfig{
			Subject: s.config.LimitChangesSubject,
			Durable: s.config.LimitChangesDurable,
		},
			natsmsg.WithConsumerLogger(s.logger),
			natsmsg.WithConsumerTracer(s.tracer),
			natsmsg.WithConsumerMetrics(s.metrics),
		)
		if err := consumer.Start(ctx); err != nil {
			nc.Close()
			return err
		}
	}

	s.mu.Lock()
	s.nc = nc
	s.js = js
	s.consumer = consumer
	s.events = natsmsg.NewEventPublisher(js, s.config.EventsSubjectPrefix, s.logger, s.metrics)
	s.changes = natsmsg.NewLimitChangePublisher(js, s.config.LimitChangesSubject, s.metrics)
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("nats.url", url),
		attribute.String("stream.limit_changes", s.config.LimitChangesStream),
		attribute.String("stream.events", s.config.EventsStream),
		attribute.Bool("consumer.enabled", consumer != nil),
	)
	s.logger.InfoContext(ctx, "eventbus service started",
		"limit_changes_stream", s.config.LimitChangesStream,
		"events_stream", s.config.EventsStream,
		"consuming", consumer != nil)
	return nil
}

// Stop drains the consumer, then the connection.
func (s *Service) Stop(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "eventbus.Stop")
	defer span.End()

	s.mu.Lock()
	nc, consumer := s.nc, s.consumer
	s.nc, s.js, s.consumer, s.events, s.changes = nil, nil, nil, nil, nil
	s.mu.Unlock()

	if nc == nil {
		return nil
	}

	var errs []error
	if consumer != nil {
		if err := consumer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		s.logger.WarnContext(ctx, "error draining NATS connection", "error", err)
		nc.Close()
	}

	s.logger.InfoContext(ctx, "eventbus service stopped")
	return errors.Join(errs...)
}

// HealthCheck fails when the connection or the consumer is down.
func (s *Service) HealthCheck(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "eventbus.HealthCheck")
	defer span.End()

	s.mu.RLock()
	nc, consumer := s.nc, s.consumer
	s.mu.RUnlock()

	var err error
	switch {
	case nc == nil:
		err = ErrNotStarted
	case !nc.IsConnected():
		err = fmt.Errorf("nats connection %s", nc.Status())
	case consumer != nil:
		err = consumer.HealthCheck(ctx)
	}
	if err != nil {
		observability.SetSpanError(ctx, err)
		return err
	}

	span.SetAttributes(attribute.Bool("healthy", true))
	return nil
}

// Record publishes event. Implements reporting.EventSink.
func (s *Service) Record(ctx context.Context, event domain.SuspiciousEvent) error {
	s.mu.RLock()
	events := s.events
	s.mu.RUnlock()

	if events == nil {
		return ErrNotStarted
	}
	return events.Record(ctx, event)
}

// PublishLimitChange sends a limit change to the consumers of the bus.
func (s *Service) PublishLimitChange(ctx context.Context, accountID domain.AccountID, limit int) (string, error) {
	s.mu.RLock()
	changes := s.changes
	s.mu.RUnlock()

	if changes == nil {
		return "", ErrNotStarted
	}
	return changes.Publish(ctx, accountID, limit)
}

// JetStream returns the JetStream context, or nil before Start.
func (s *Service) JetStream() nats.JetStreamContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.js
}
