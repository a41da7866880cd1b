package limiting

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/plaenen/assetlimits/pkg/observability"
)

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source used to stamp suspicious events.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTracer sets the tracer. Defaults to the global tracer provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithMetrics sets the metric instruments. Defaults to no-op instruments.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithTelemetry takes the tracer and metrics from tel.
func WithTelemetry(tel *observability.Telemetry) Option {
	return func(s *Service) {
		s.tracer = tel.Tracer(observability.InstrumentationName)
		s.metrics = tel.Metrics
	}
}

// WithConflictRetries makes every command reload and reapply itself up to n
// times when its save loses an optimistic concurrency race. The default, 0,
// returns domain.ErrConcurrencyConflict to the caller.
func WithConflictRetries(n int) Option {
	return func(s *Service) {
		s.retries = max(n, 0)
	}
}
