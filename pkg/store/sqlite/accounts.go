package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/store"
)

// AccountStore implements store.AccountStore on the accounts and
// downloaded_assets tables.
type AccountStore struct {
	s *Store
}

var _ store.AccountStore = (*AccountStore)(nil)

func (a *AccountStore) Load(ctx context.Context, id domain.AccountID) (*domain.Account, error) {
	tx, err := a.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		limit   int
		version int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT l.limit_value, COALESCE(a.version, 0)
		FROM account_limits l
		LEFT JOIN accounts a ON a.id = l.id
		WHERE l.id = ?`, string(id)).Scan(&limit, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", id, err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT asset_id, country_code
		FROM downloaded_assets
		WHERE account_id = ?
		ORDER BY position`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load assets of %s: %w", id, err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var asset domain.Asset
		if err := rows.Scan(&asset.ID, &asset.CountryCode); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load assets of %s: %w", id, err)
	}

	return domain.RestoreAccount(id, limit, version, assets), nil
}

func (a *AccountStore) Save(ctx context.Context, account *domain.Account) error {
	id := string(account.AccountID())
	expected := account.Version()

	err := a.s.writeTx(ctx, func(tx *sql.Tx) error {
		var (
			res sql.Result
			err error
		)
		if expected == 0 {
			res, err = tx.ExecContext(ctx,
				`INSERT INTO accounts (id, version) VALUES (?, 1) ON CONFLICT (id) DO NOTHING`, id)
		} else {
			res, err = tx.ExecContext(ctx,
				`UPDATE accounts SET version = version + 1 WHERE id = ? AND version = ?`, id, expected)
		}
		if err != nil {
			return fmt.Errorf("failed to update account %s: %w", id, err)
		}
		if err := checkAffected(res, id, expected); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM downloaded_assets WHERE account_id = ?`, id); err != nil {
			return fmt.Errorf("failed to clear assets of %s: %w", id, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO downloaded_assets (account_id, position, asset_id, country_code)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare asset insert: %w", err)
		}
		defer stmt.Close()

		for position, asset := range account.Assets() {
			if _, err := stmt.ExecContext(ctx, id, position, string(asset.ID), string(asset.CountryCode)); err != nil {
				return fmt.Errorf("failed to insert asset %s: %w", asset, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	account.SetVersion(expected + 1)
	return nil
}

// checkAffected turns a version-checked write that matched no row into a conflict.
func checkAffected(res sql.Result, id string, expected int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s at version %d: %w", id, expected, domain.ErrConcurrencyConflict)
	}
	return nil
}
