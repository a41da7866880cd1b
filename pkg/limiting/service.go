// Package limiting orchestrates account commands: it loads aggregates, applies
// the requested mutation, forwards suspicious events and persists the result.
package limiting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/observability"
	"github.com/plaenen/assetlimits/pkg/reporting"
	"github.com/plaenen/assetlimits/pkg/store"
)

// Assignment and removal outcomes reported to metrics.
const (
	OutcomeAssigned    = "assigned"
	OutcomeDuplicate   = "duplicate"
	OutcomeRejected    = "rejected"
	OutcomeRemoved     = "removed"
	OutcomeSuperfluous = "superfluous"
)

// Service is safe for concurrent use. It holds no locks; concurrent commands on
// the same account are arbitrated by the stores' version checks.
type Service struct {
	accounts store.AccountStore
	limits   store.LimitStore
	sink     reporting.EventSink

	now     func() time.Time
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.Metrics
	retries int
}

// NewService wires the three collaborators. A nil sink discards events.
func NewService(accounts store.AccountStore, limits store.LimitStore, sink reporting.EventSink, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		limits:   limits,
		sink:     sink,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sink == nil {
		s.sink = reporting.Discard
	}
	if s.now == nil {
		s.now = domain.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(observability.InstrumentationName)
	}
	if s.metrics == nil {
		s.metrics = observability.NoopMetrics()
	}
	return s
}

// OverrideAccountLimit sets the limit of accountID, creating the policy (and
// with it the account) if it doesn't exist yet. Repeated identical overrides
// are harmless; the last write wins.
func (s *Service) OverrideAccountLimit(ctx context.Context, accountID domain.AccountID, newLimit int) error {
	return s.execute(ctx, "OverrideAccountLimit", []attribute.KeyValue{
		observability.AttrAccountID.String(string(accountID)),
		observability.AttrLimit.Int(newLimit),
	}, func(ctx context.Context) error {
		if _, err := domain.NewAccountID(string(accountID)); err != nil {
			return err
		}
		// Reject before touching storage.
		if _, err := domain.NewAccountLimitPolicy(accountID, newLimit); err != nil {
			return err
		}

		return s.withRetry(ctx, "OverrideAccountLimit", func(ctx context.Context) error {
			policy, err := s.limits.Load(ctx, accountID)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				if policy, err = domain.NewAccountLimitPolicy(accountID, newLimit); err != nil {
					return err
				}
			case err != nil:
				return fmt.Errorf("loading limit policy %s: %w", accountID, err)
			default:
				if err := policy.OverrideLimit(newLimit); err != nil {
					return err
				}
			}

			if err := s.limits.Save(ctx, policy); err != nil {
				return fmt.Errorf("saving limit policy %s: %w", accountID, err)
			}

			s.metrics.RecordLimitOverride(ctx)
			s.logger.InfoContext(ctx, "account limit overridden",
				"account_id", accountID, "limit", newLimit, "version", policy.Version())
			return nil
		})
	})
}

// AssignAsset starts tracking asset for accountID and returns the suspicious
// events it produced, which have already been forwarded to the sink.
//
// Fails with *domain.AccountNotFoundError when the account has no limit
// policy and with *domain.LimitExceededError when the account is full; in
// both cases nothing is forwarded or persisted.
func (s *Service) AssignAsset(ctx context.Context, accountID domain.AccountID, asset domain.Asset) ([]domain.SuspiciousEvent, error) {
	var events []domain.SuspiciousEvent

	err := s.execute(ctx, "AssignAsset", observability.AssetAttrs(string(accountID), string(asset.ID), string(asset.CountryCode)),
		func(ctx context.Context) error {
			if err := validateRequest(accountID, asset); err != nil {
				return err
			}

			return s.withRetry(ctx, "AssignAsset", func(ctx context.Context) error {
				account, err := s.loadAccount(ctx, accountID)
				if err != nil {
					return err
				}

				before := account.Len()
				events, err = account.Assign(asset, s.now())
				if err != nil {
					if errors.Is(err, domain.ErrLimitExceeded) {
						s.metrics.RecordAssignment(ctx, OutcomeRejected)
					}
					return err
				}

				s.forward(ctx, events)

				if account.Len() == before {
					s.metrics.RecordAssignment(ctx, OutcomeDuplicate)
					return nil
				}
				if err := s.accounts.Save(ctx, account); err != nil {
					return fmt.Errorf("saving account %s: %w", accountID, err)
				}
				s.metrics.RecordAssignment(ctx, OutcomeAssigned)
				return nil
			})
		})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// RemoveAsset stops tracking asset for accountID. Removing an asset that isn't
// assigned succeeds with a SuperfluousRemoval event.
func (s *Service) RemoveAsset(ctx context.Context, accountID domain.AccountID, asset domain.Asset) ([]domain.SuspiciousEvent, error) {
	var events []domain.SuspiciousEvent

	err := s.execute(ctx, "RemoveAsset", observability.AssetAttrs(string(accountID), string(asset.ID), string(asset.CountryCode)),
		func(ctx context.Context) error {
			if err := validateRequest(accountID, asset); err != nil {
				return err
			}

			return s.withRetry(ctx, "RemoveAsset", func(ctx context.Context) error {
				account, err := s.loadAccount(ctx, accountID)
				if err != nil {
					return err
				}

				events = account.Unassign(asset, s.now())
				s.forward(ctx, events)

				if len(events) > 0 {
					s.metrics.RecordRemoval(ctx, OutcomeSuperfluous)
					return nil
				}
				if err := s.accounts.Save(ctx, account); err != nil {
					return fmt.Errorf("saving account %s: %w", accountID, err)
				}
				s.metrics.RecordRemoval(ctx, OutcomeRemoved)
				return nil
			})
		})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// FindAssets returns the assets assigned to accountID in insertion order.
// found is false when the account doesn't exist.
func (s *Service) FindAssets(ctx context.Context, accountID domain.AccountID) (assets []domain.Asset, found bool, err error) {
	err = s.execute(ctx, "FindAssets", []attribute.KeyValue{
		observability.AttrAccountID.String(string(accountID)),
	}, func(ctx context.Context) error {
		account, err := s.accounts.Load(ctx, accountID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("loading account %s: %w", accountID, err)
		}
		assets, found = account.Assets(), true
		return nil
	})
	return assets, found, err
}

func (s *Service) loadAccount(ctx context.Context, accountID domain.AccountID) (*domain.Account, error) {
	account, err := s.accounts.Load(ctx, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.AccountNotFoundError{AccountID: accountID}
	}
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", accountID, err)
	}
	observability.SetSpanAttributes(ctx, observability.AttrVersion.Int64(account.Version()))
	return account, nil
}

// forward hands events to the sink. A failing sink never fails the command.
func (s *Service) forward(ctx context.Context, events []domain.SuspiciousEvent) {
	for _, event := range events {
		s.metrics.RecordSuspiciousEvent(ctx, event.Kind.String())
		observability.AddSpanEvent(ctx, "suspicious_event",
			observability.AttrEventID.String(event.ID),
			observability.AttrEventKind.String(event.Kind.String()),
		)

		if err := s.sink.Record(ctx, event); err != nil {
			s.metrics.RecordSinkFailure(ctx)
			s.logger.ErrorContext(ctx, "failed to record suspicious event",
				"event_id", event.ID,
				"account_id", event.AccountID,
				"kind", event.Kind.String(),
				"error", err,
			)
		}
	}
}

// withRetry repeats fn on concurrency conflicts, as configured.
func (s *Service) withRetry(ctx context.Context, command string, fn func(ctx context.Context) error) error {
	attempt := 0
	return store.RetryOnConflict(ctx, s.retries, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if store.IsConcurrencyConflict(err) {
			s.metrics.RecordConflict(ctx, command)
			s.logger.DebugContext(ctx, "concurrency conflict", "command", command, "attempt", attempt, "error", err)
		}
		observability.SetSpanAttributes(ctx, observability.AttrAttempt.Int(attempt))
		return err
	})
}

// execute wraps a command in a span and records its duration.
func (s *Service) execute(ctx context.Context, command string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, s.tracer, "limiting."+command, observability.WithAttributes(attrs...))
	start := time.Now()

	err := fn(ctx)

	s.metrics.RecordCommand(ctx, command, time.Since(start), err)
	observability.EndSpan(span, err)
	return err
}

func validateRequest(accountID domain.AccountID, asset domain.Asset) error {
	if _, err := domain.NewAccountID(string(accountID)); err != nil {
		return err
	}
	_, err := domain.NewAsset(string(asset.ID), string(asset.CountryCode))
	return err
}
