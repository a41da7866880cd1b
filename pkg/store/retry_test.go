package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/store"
)

func TestRetryOnConflict(t *testing.T) {
	conflict := fmt.Errorf("saving account: %w", domain.ErrConcurrencyConflict)
	boom := errors.New("boom")

	tests := []struct {
		name       string
		maxRetries int
		results    []error
		wantCalls  int
		wantErr    error
	}{
		{name: "succeeds first time", maxRetries: 3, results: []error{nil}, wantCalls: 1},
		{name: "succeeds after conflicts", maxRetries: 3, results: []error{conflict, conflict, nil}, wantCalls: 3},
		{name: "gives up after max retries", maxRetries: 2, results: []error{conflict, conflict, conflict, nil}, wantCalls: 3, wantErr: domain.ErrConcurrencyConflict},
		{name: "zero retries surfaces the conflict", maxRetries: 0, results: []error{conflict, nil}, wantCalls: 1, wantErr: domain.ErrConcurrencyConflict},
		{name: "other errors are not retried", maxRetries: 3, results: []error{boom, nil}, wantCalls: 1, wantErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := store.RetryOnConflict(context.Background(), tt.maxRetries, func(context.Context) error {
				result := tt.results[calls]
				calls++
				return result
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRetryOnConflict_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	calls := 0
	err := store.RetryOnConflict(ctx, 100, func(context.Context) error {
		calls++
		return domain.ErrConcurrencyConflict
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.Less(t, calls, 100)
}
