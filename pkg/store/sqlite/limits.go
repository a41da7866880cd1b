package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/store"
)

// LimitStore implements store.LimitStore on the account_limits table.
type LimitStore struct {
	s *Store
}

var _ store.LimitStore = (*LimitStore)(nil)

func (l *LimitStore) Load(ctx context.Context, id domain.AccountID) (*domain.AccountLimitPolicy, error) {
	var (
		limit   int
		version int64
	)
	err := l.s.db.QueryRowContext(ctx,
		`SELECT limit_value, version FROM account_limits WHERE id = ?`, string(id)).Scan(&limit, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("limit policy %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load limit policy %s: %w", id, err)
	}
	return domain.RestoreAccountLimitPolicy(id, limit, version), nil
}

func (l *LimitStore) Save(ctx context.Context, policy *domain.AccountLimitPolicy) error {
	id := string(policy.AccountID())
	expected := policy.Version()

	err := l.s.writeTx(ctx, func(tx *sql.Tx) error {
		var (
			res sql.Result
			err error
		)
		if expected == 0 {
			res, err = tx.ExecContext(ctx, `
				INSERT INTO account_limits (id, limit_value, version) VALUES (?, ?, 1)
				ON CONFLICT (id) DO NOTHING`, id, policy.Limit())
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE account_limits SET limit_value = ?, version = version + 1
				WHERE id = ? AND version = ?`, policy.Limit(), id, expected)
		}
		if err != nil {
			return fmt.Errorf("failed to save limit policy %s: %w", id, err)
		}
		return checkAffected(res, id, expected)
	})
	if err != nil {
		return err
	}

	policy.SetVersion(expected + 1)
	return nil
}
