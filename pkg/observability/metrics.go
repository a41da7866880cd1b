package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the metric instruments for download limiting.
type Metrics struct {
	// Command metrics
	CommandDuration metric.Float64Histogram
	CommandErrors   metric.Int64Counter

	// Outcome metrics
	Assignments      metric.Int64Counter
	Removals         metric.Int64Counter
	LimitOverrides   metric.Int64Counter
	SuspiciousEvents metric.Int64Counter

	// Concurrency and delivery
	ConcurrencyConflicts metric.Int64Counter
	SinkFailures         metric.Int64Counter

	// NATS metrics
	NATSMessages metric.Int64Counter
}

// NewMetrics creates all metric instruments
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CommandDuration, err = meter.Float64Histogram(
		"limiting.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.duration: %w", err)
	}

	m.CommandErrors, err = meter.Int64Counter(
		"limiting.command.errors",
		metric.WithDescription("Commands that returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.errors: %w", err)
	}

	m.Assignments, err = meter.Int64Counter(
		"limiting.assignments",
		metric.WithDescription("Asset assignments by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating assignments: %w", err)
	}

	m.Removals, err = meter.Int64Counter(
		"limiting.removals",
		metric.WithDescription("Asset removals by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating removals: %w", err)
	}

	m.LimitOverrides, err = meter.Int64Counter(
		"limiting.limit_overrides",
		metric.WithDescription("Applied limit overrides"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating limit_overrides: %w", err)
	}

	m.SuspiciousEvents, err = meter.Int64Counter(
		"limiting.suspicious_events",
		metric.WithDescription("Suspicious events produced, by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating suspicious_events: %w", err)
	}

	m.ConcurrencyConflicts, err = meter.Int64Counter(
		"limiting.concurrency_conflicts",
		metric.WithDescription("Saves rejected by the optimistic version check"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating concurrency_conflicts: %w", err)
	}

	m.SinkFailures, err = meter.Int64Counter(
		"limiting.sink_failures",
		metric.WithDescription("Suspicious events the sink failed to record"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sink_failures: %w", err)
	}

	m.NATSMessages, err = meter.Int64Counter(
		"limiting.nats.messages",
		metric.WithDescription("NATS messages published or received, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating nats.messages: %w", err)
	}

	return m, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider().Meter(InstrumentationName))
	if err != nil {
		// noop instruments never fail to build
		panic(err)
	}
	return m
}

// RecordCommand records command execution metrics
func (m *Metrics) RecordCommand(ctx context.Context, command string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("command", command))
	m.CommandDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.CommandErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("error_type", fmt.Sprintf("%T", err)),
		))
	}
}

// RecordAssignment counts an assignment; outcome is assigned, duplicate or rejected.
func (m *Metrics) RecordAssignment(ctx context.Context, outcome string) {
	m.Assignments.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRemoval counts a removal; outcome is removed or superfluous.
func (m *Metrics) RecordRemoval(ctx context.Context, outcome string) {
	m.Removals.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordLimitOverride(ctx context.Context) {
	m.LimitOverrides.Add(ctx, 1)
}

func (m *Metrics) RecordSuspiciousEvent(ctx context.Context, kind string) {
	m.SuspiciousEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordConflict(ctx context.Context, command string) {
	m.ConcurrencyConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

func (m *Metrics) RecordSinkFailure(ctx context.Context) {
	m.SinkFailures.Add(ctx, 1)
}

// RecordNATSMessage counts a message; direction is publish or receive.
func (m *Metrics) RecordNATSMessage(ctx context.Context, subject, direction, outcome string) {
	m.NATSMessages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("subject", subject),
		attribute.String("direction", direction),
		attribute.String("outcome", outcome),
	))
}
