// Package memory provides in-process AccountStore and LimitStore implementations
// sharing one mutex-guarded state. Intended for tests and local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/store"
)

type accountRecord struct {
	assets  []domain.Asset
	version int64
}

type limitRecord struct {
	limit   int
	version int64
}

// Store holds accounts and limit policies. The zero value is not usable; call New.
type Store struct {
	mu       sync.RWMutex
	accounts map[domain.AccountID]accountRecord
	limits   map[domain.AccountID]limitRecord
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[domain.AccountID]accountRecord),
		limits:   make(map[domain.AccountID]limitRecord),
	}
}

// Accounts returns the AccountStore view.
func (s *Store) Accounts() *AccountStore {
	return &AccountStore{s: s}
}

// Limits returns the LimitStore view.
func (s *Store) Limits() *LimitStore {
	return &LimitStore{s: s}
}

// AccountStore implements store.AccountStore.
type AccountStore struct {
	s *Store
}

var _ store.AccountStore = (*AccountStore)(nil)

func (a *AccountStore) Load(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	policy, ok := a.s.limits[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	record := a.s.accounts[id]
	// RestoreAccount copies assets into its own collection.
	return domain.RestoreAccount(id, policy.limit, record.version, record.assets), nil
}

func (a *AccountStore) Save(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	id := account.AccountID()
	current := a.s.accounts[id]
	if current.version != account.Version() {
		return fmt.Errorf("account %s at version %d, stored %d: %w",
			id, account.Version(), current.version, domain.ErrConcurrencyConflict)
	}

	next := current.version + 1
	a.s.accounts[id] = accountRecord{assets: account.Assets(), version: next}
	account.SetVersion(next)
	return nil
}

// LimitStore implements store.LimitStore.
type LimitStore struct {
	s *Store
}

var _ store.LimitStore = (*LimitStore)(nil)

func (l *LimitStore) Load(ctx context.Context, id domain.AccountID) (*domain.AccountLimitPolicy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.s.mu.RLock()
	defer l.s.mu.RUnlock()

	record, ok := l.s.limits[id]
	if !ok {
		return nil, fmt.Errorf("limit policy %s: %w", id, domain.ErrNotFound)
	}
	return domain.RestoreAccountLimitPolicy(id, record.limit, record.version), nil
}

func (l *LimitStore) Save(ctx context.Context, policy *domain.AccountLimitPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	id := policy.AccountID()
	current := l.s.limits[id]
	if current.version != policy.Version() {
		return fmt.Errorf("limit policy %s at version %d, stored %d: %w",
			id, policy.Version(), current.version, domain.ErrConcurrencyConflict)
	}

	next := current.version + 1
	l.s.limits[id] = limitRecord{limit: policy.Limit(), version: next}
	policy.SetVersion(next)
	return nil
}
