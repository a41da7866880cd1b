package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/observability"
)

// Message outcomes reported to metrics.
const (
	OutcomeAck  = "ack"
	OutcomeNak  = "nak"
	OutcomeTerm = "term"

	directionReceive = "receive"
	directionPublish = "publish"
)

var propagator = propagation.TraceContext{}

// ErrMalformedLimitChange marks a message that can never be processed.
var ErrMalformedLimitChange = errors.New("malformed limit change")

// LimitChange is the wire format of an inbound limit change.
type LimitChange struct {
	AccountID string `json:"accountId"`
	Limit     int    `json:"limit"`
}

// DecodeLimitChange parses data and rejects messages missing either field.
// A negative limit is left for the policy to reject.
func DecodeLimitChange(data []byte) (LimitChange, error) {
	var raw struct {
		AccountID *string `json:"accountId"`
		Limit     *int    `json:"limit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return LimitChange{}, fmt.Errorf("%w: %v", ErrMalformedLimitChange, err)
	}
	if raw.AccountID == nil {
		return LimitChange{}, fmt.Errorf("%w: accountId is required", ErrMalformedLimitChange)
	}
	if raw.Limit == nil {
		return LimitChange{}, fmt.Errorf("%w: limit is required", ErrMalformedLimitChange)
	}
	return LimitChange{AccountID: *raw.AccountID, Limit: *raw.Limit}, nil
}

// LimitOverrider applies limit changes. *limiting.Service satisfies it.
type LimitOverrider interface {
	OverrideAccountLimit(ctx context.Context, accountID domain.AccountID, newLimit int) error
}

// ConsumerConfig names the subscription.
type ConsumerConfig struct {
	Subject string
	Durable string
	// MaxDeliver bounds redeliveries of a failing message; 0 keeps the server default.
	MaxDeliver int
	AckWait    time.Duration
}

// LimitChangeConsumer applies limit changes from a durable JetStream queue
// subscription. Messages are acked on success, terminated when they can never
// succeed and nak'ed otherwise.
type LimitChangeConsumer struct {
	js        nats.JetStreamContext
	overrider LimitOverrider
	cfg       ConsumerConfig

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.Metrics

	mu  sync.Mutex
	sub *nats.Subscription
}

// ConsumerOption configures a LimitChangeConsumer.
type ConsumerOption func(*LimitChangeConsumer)

// WithConsumerLogger sets the logger.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *LimitChangeConsumer) {
		c.logger = logger
	}
}

// WithConsumerTracer sets the tracer.
func WithConsumerTracer(tracer trace.Tracer) ConsumerOption {
	return func(c *LimitChangeConsumer) {
		c.tracer = tracer
	}
}

// WithConsumerMetrics sets the metrics.
func WithConsumerMetrics(metrics *observability.Metrics) ConsumerOption {
	return func(c *LimitChangeConsumer) {
		c.metrics = metrics
	}
}

// NewLimitChangeConsumer creates a consumer; call Start to subscribe.
func NewLimitChangeConsumer(js nats.JetStreamContext, overrider LimitOverrider, cfg ConsumerConfig, opts ...ConsumerOption) *LimitChangeConsumer {
	c := &LimitChangeConsumer{
		js:        js,
		overrider: overrider,
		cfg:       cfg,
		logger:    slog.Default(),
		tracer:    otel.Tracer(observability.InstrumentationName),
		metrics:   observability.NoopMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements runner.Service.
func (c *LimitChangeConsumer) Name() string {
	return "limit-change-consumer"
}

// Start subscribes. The subscription outlives ctx; use Stop to end it.
func (c *LimitChangeConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		return nil
	}

	opts := []nats.SubOpt{
		nats.Durable(c.cfg.Durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.DeliverAll(),
	}
	if c.cfg.MaxDeliver > 0 {
		opts = append(opts, nats.MaxDeliver(c.cfg.MaxDeliver))
	}
	if c.cfg.AckWait > 0 {
		opts = append(opts, nats.AckWait(c.cfg.AckWait))
	}

	sub, err := c.js.QueueSubscribe(c.cfg.Subject, c.cfg.Durable, c.handle, opts...)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.cfg.Subject, err)
	}
	c.sub = sub

	c.logger.InfoContext(ctx, "limit change consumer started",
		"subject", c.cfg.Subject, "durable", c.cfg.Durable)
	return nil
}

// Stop drains the subscription so in-flight messages finish first.
func (c *LimitChangeConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	c.logger.InfoContext(ctx, "limit change consumer stopped", "subject", c.cfg.Subject)
	return nil
}

// HealthCheck fails when the subscription is gone.
func (c *LimitChangeConsumer) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub == nil || !c.sub.IsValid() {
		return errors.New("limit change subscription is not active")
	}
	return nil
}

func (c *LimitChangeConsumer) handle(msg *nats.Msg) {
	ctx := context.Background()
	if msg.Header != nil {
		ctx = propagator.Extract(ctx, propagation.HeaderCarrier(msg.Header))
	}

	ctx, span := observability.StartSpan(ctx, c.tracer, "limiting.ConsumeLimitChange",
		observability.WithAttributes(attribute.String("messaging.destination", msg.Subject)))

	outcome, err := c.process(ctx, msg)
	observability.EndSpan(span, err)

	c.metrics.RecordNATSMessage(ctx, msg.Subject, directionReceive, outcome)
}

func (c *LimitChangeConsumer) process(ctx context.Context, msg *nats.Msg) (string, error) {
	change, err := DecodeLimitChange(msg.Data)
	if err == nil {
		observability.SetSpanAttributes(ctx,
			observability.AttrAccountID.String(change.AccountID),
			observability.AttrLimit.Int(change.Limit))
		err = c.overrider.OverrideAccountLimit(ctx, domain.AccountID(change.AccountID), change.Limit)
	}

	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			c.logger.ErrorContext(ctx, "failed to ack limit change", "error", ackErr)
		}
		return OutcomeAck, nil

	case errors.Is(err, ErrMalformedLimitChange), errors.Is(err, domain.ErrValidation):
		c.logger.WarnContext(ctx, "dropping invalid limit change",
			"subject", msg.Subject, "error", err)
		if termErr := msg.Term(); termErr != nil {
			c.logger.ErrorContext(ctx, "failed to terminate limit change", "error", termErr)
		}
		return OutcomeTerm, err

	default:
		c.logger.ErrorContext(ctx, "failed to apply limit change, will retry",
			"subject", msg.Subject, "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			c.logger.ErrorContext(ctx, "failed to nak limit change", "error", nakErr)
		}
		return OutcomeNak, err
	}
}
