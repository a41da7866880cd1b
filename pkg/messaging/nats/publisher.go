package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"

	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/observability"
	"github.com/plaenen/assetlimits/pkg/reporting"
)

// LimitChangePublisher sends limit changes to the consumer's subject.
type LimitChangePublisher struct {
	js      nats.JetStreamContext
	subject string
	metrics *observability.Metrics
}

// NewLimitChangePublisher publishes on subject. A nil metrics records nothing.
func NewLimitChangePublisher(js nats.JetStreamContext, subject string, metrics *observability.Metrics) *LimitChangePublisher {
	if metrics == nil {
		metrics = observability.NoopMetrics()
	}
	return &LimitChangePublisher{js: js, subject: subject, metrics: metrics}
}

// Publish sends one change and returns its message ID once the stream has
// stored it.
func (p *LimitChangePublisher) Publish(ctx context.Context, accountID domain.AccountID, limit int) (string, error) {
	data, err := json.Marshal(LimitChange{AccountID: string(accountID), Limit: limit})
	if err != nil {
		return "", fmt.Errorf("failed to encode limit change: %w", err)
	}

	msgID := uuid.NewString()
	if err := publish(ctx, p.js, p.subject, msgID, data); err != nil {
		p.metrics.RecordNATSMessage(ctx, p.subject, directionPublish, "error")
		return "", err
	}
	p.metrics.RecordNATSMessage(ctx, p.subject, directionPublish, OutcomeAck)
	return msgID, nil
}

// EventPublisher is a reporting.EventSink that publishes suspicious events on
// <prefix>.<kind>. The event ID is the message ID, so re-reported events
// within the stream's duplicate window are stored once.
type EventPublisher struct {
	js      nats.JetStreamContext
	prefix  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

var _ reporting.EventSink = (*EventPublisher)(nil)

// NewEventPublisher publishes under prefix.
func NewEventPublisher(js nats.JetStreamContext, prefix string, logger *slog.Logger, metrics *observability.Metrics) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics()
	}
	return &EventPublisher{js: js, prefix: prefix, logger: logger, metrics: metrics}
}

// Subject returns the subject event is published on.
func (p *EventPublisher) Subject(event domain.SuspiciousEvent) string {
	return p.prefix + "." + event.Kind.String()
}

// Record implements reporting.EventSink.
func (p *EventPublisher) Record(ctx context.Context, event domain.SuspiciousEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	subject := p.Subject(event)
	if err := publish(ctx, p.js, subject, event.ID, data); err != nil {
		p.metrics.RecordNATSMessage(ctx, subject, directionPublish, "error")
		return err
	}

	p.metrics.RecordNATSMessage(ctx, subject, directionPublish, OutcomeAck)
	p.logger.DebugContext(ctx, "suspicious event published", "subject", subject, "event_id", event.ID)
	return nil
}

func publish(ctx context.Context, js nats.JetStreamContext, subject, msgID string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	propagator.Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if _, err := js.PublishMsg(msg, nats.MsgId(msgID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}
