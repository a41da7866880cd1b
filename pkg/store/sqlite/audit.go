package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/plaenen/assetlimits/pkg/domain"
	"github.com/plaenen/assetlimits/pkg/reporting"
)

// AuditLog persists suspicious events. Recording the same event ID twice is a no-op.
type AuditLog struct {
	s *Store
}

var _ reporting.EventSink = (*AuditLog)(nil)

// Record stores event.
func (l *AuditLog) Record(ctx context.Context, event domain.SuspiciousEvent) error {
	kind, err := event.Kind.MarshalText()
	if err != nil {
		return err
	}

	var conflicting sql.NullString
	if event.ConflictingCountry != "" {
		conflicting = sql.NullString{String: string(event.ConflictingCountry), Valid: true}
	}

	return l.s.writeTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO suspicious_events
				(id, occurred_at, account_id, kind, asset_id, country_code, conflicting_country, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`,
			event.ID,
			event.OccurredAt.UnixNano(),
			string(event.AccountID),
			string(kind),
			string(event.Asset.ID),
			string(event.Asset.CountryCode),
			conflicting,
			event.Description(),
		)
		if err != nil {
			return fmt.Errorf("failed to record event %s: %w", event.ID, err)
		}
		return nil
	})
}

// ListEvents returns the events recorded for accountID, oldest first.
func (l *AuditLog) ListEvents(ctx context.Context, accountID domain.AccountID) ([]domain.SuspiciousEvent, error) {
	rows, err := l.s.db.QueryContext(ctx, `
		SELECT id, occurred_at, kind, asset_id, country_code, conflicting_country
		FROM suspicious_events
		WHERE account_id = ?
		ORDER BY occurred_at, id`, string(accountID))
	if err != nil {
		return nil, fmt.Errorf("failed to list events of %s: %w", accountID, err)
	}
	defer rows.Close()

	var events []domain.SuspiciousEvent
	for rows.Next() {
		var (
			event       = domain.SuspiciousEvent{AccountID: accountID}
			occurredAt  int64
			kind        string
			conflicting sql.NullString
		)
		if err := rows.Scan(&event.ID, &occurredAt, &kind, &event.Asset.ID, &event.Asset.CountryCode, &conflicting); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if event.Kind, err = domain.ParseEventKind(kind); err != nil {
			return nil, err
		}
		event.OccurredAt = time.Unix(0, occurredAt).UTC()
		event.ConflictingCountry = domain.CountryCode(conflicting.String)
		events = append(events, event)
	}
	return events, rows.Err()
}
