package store

import (
	"context"

	"github.com/plaenen/assetlimits/pkg/domain"
)

// AccountStore persists the asset list of an account.
//
// An account exists exactly when a limit policy exists for its id. Load returns
// domain.ErrNotFound otherwise, and an empty account at version 0 when the policy
// exists but no assets were ever saved. The returned snapshot carries the current
// limit; Save never writes it.
type AccountStore interface {
	// Load returns an independent snapshot of the account.
	Load(ctx context.Context, id domain.AccountID) (*domain.Account, error)

	// Save replaces the stored asset list if the stored version still equals
	// account.Version(), then increments it and writes the new version back
	// into account. Returns domain.ErrConcurrencyConflict otherwise.
	Save(ctx context.Context, account *domain.Account) error
}

// LimitStore persists per-account limit policies.
type LimitStore interface {
	// Load returns domain.ErrNotFound if no policy exists for id.
	Load(ctx context.Context, id domain.AccountID) (*domain.AccountLimitPolicy, error)

	// Save has the same version contract as AccountStore.Save. A policy at
	// version 0 is created and conflicts if one already exists.
	Save(ctx context.Context, policy *domain.AccountLimitPolicy) error
}
