// Package reporting delivers suspicious events to audit destinations.
//
// Recorder is an in-memory sink for callers that embed the limiting service
// and want to assert on the events it reported in their own tests.
package reporting

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/plaenen/assetlimits/pkg/domain"
)

// EventSink receives suspicious events. Delivery is best effort: callers log
// a failed Record and carry on.
type EventSink interface {
	Record(ctx context.Context, event domain.SuspiciousEvent) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, event domain.SuspiciousEvent) error

func (f SinkFunc) Record(ctx context.Context, event domain.SuspiciousEvent) error {
	return f(ctx, event)
}

// Discard drops every event.
var Discard EventSink = SinkFunc(func(context.Context, domain.SuspiciousEvent) error { return nil })

// LoggingSink writes events to a structured logger. Suspicious events are
// logged at WARN.
type LoggingSink struct {
	logger *slog.Logger
}

// NewLoggingSink creates a LoggingSink. A nil logger uses slog.Default().
func NewLoggingSink(logger *slog.Logger) *LoggingSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) Record(ctx context.Context, event domain.SuspiciousEvent) error {
	level := slog.LevelInfo
	if event.Suspicious() {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		slog.String("event_id", event.ID),
		slog.String("account_id", string(event.AccountID)),
		slog.String("kind", event.Kind.String()),
		slog.String("asset_id", string(event.Asset.ID)),
		slog.String("country_code", string(event.Asset.CountryCode)),
		slog.Time("occurred_at", event.OccurredAt),
	}
	if event.ConflictingCountry != "" {
		attrs = append(attrs, slog.String("conflicting_country", string(event.ConflictingCountry)))
	}

	s.logger.LogAttrs(ctx, level, event.Description(), attrs...)
	return nil
}

// MultiSink records each event in every sink, continuing past failures.
type MultiSink []EventSink

func (m MultiSink) Record(ctx context.Context, event domain.SuspiciousEvent) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every event in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []domain.SuspiciousEvent
}

func (r *Recorder) Record(_ context.Context, event domain.SuspiciousEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []domain.SuspiciousEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SuspiciousEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Reset forgets every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
