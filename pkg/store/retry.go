package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/plaenen/assetlimits/pkg/domain"
)

// RetryOnConflict runs fn until it succeeds, fails with anything other than
// domain.ErrConcurrencyConflict, or maxRetries retries are used up. fn must
// redo the whole load-mutate-save cycle. The last error is returned unchanged.
func RetryOnConflict(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !IsConcurrencyConflict(err) || attempt >= maxRetries {
			return err
		}

		// Jittered backoff before retry (up to 10ms, 20ms, 40ms, ...)
		backoff := time.Duration(10*(1<<uint(min(attempt, 6)))) * time.Millisecond
		backoff = backoff/2 + rand.N(backoff/2)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

// IsConcurrencyConflict reports whether err is an optimistic locking failure.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, domain.ErrConcurrencyConflict)
}
