package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aethermarket/coordinator/internal/storage"
)

type NotifyStore struct {
	db *sql.DB
}

func NewNotifyStore(db *sql.DB) *NotifyStore { return &NotifyStore{db: db} }

func (s *NotifyStore) RecordEvent(ctx context.Context, e storage.NotificationEvent) (storage.NotificationEvent, error) {
	e.CreatedAt = time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO notification_events (recipient_pubkey, message_id, status, sla_window_hours, created_at, contract_id, provider_pubkey)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (message_id) DO UPDATE SET status = EXCLUDED.status
		RETURNING id
	`, e.RecipientPubkey, e.MessageID, e.Status, e.SLAWindowHours, e.CreatedAt, nullableBytes(e.ContractID), nullableBytes(e.ProviderPubkey))
	if err := row.Scan(&e.ID); err != nil {
		return storage.NotificationEvent{}, err
	}
	return e, nil
}

// MarkSLAAlerted flips sla_alerted from false to true and reports whether
// this call was the one that did it, keeping SLA alerting idempotent
// (§4.9: "one alert per breach").
func (s *NotifyStore) MarkSLAAlerted(ctx context.Context, messageID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_events SET sla_alerted = TRUE WHERE message_id = $1 AND sla_alerted = FALSE
	`, messageID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// PendingBeyondSLA selects not-yet-alerted events whose window has elapsed,
// i.e. created_at + sla_window_hours <= now.
func (s *NotifyStore) PendingBeyondSLA(ctx context.Context, now time.Time) ([]storage.NotificationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_pubkey, message_id, status, sla_window_hours, sla_alerted, created_at, contract_id, provider_pubkey
		FROM notification_events
		WHERE status = 'pending' AND sla_alerted = FALSE
		  AND created_at + (sla_window_hours || ' hours')::interval <= $1
		ORDER BY created_at
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.NotificationEvent
	for rows.Next() {
		var e storage.NotificationEvent
		var contractID, providerPubkey []byte
		if err := rows.Scan(&e.ID, &e.RecipientPubkey, &e.MessageID, &e.Status, &e.SLAWindowHours, &e.SLAAlerted, &e.CreatedAt, &contractID, &providerPubkey); err != nil {
			return nil, err
		}
		e.ContractID = contractID
		e.ProviderPubkey = providerPubkey
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *NotifyStore) IncrementQuota(ctx context.Context, accountID []byte, channel string, day time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO notification_quota_counters (account_id, channel, day, count)
		VALUES ($1,$2,$3,1)
		ON CONFLICT (account_id, channel, day) DO UPDATE SET count = notification_quota_counters.count + 1
		RETURNING count
	`, accountID, channel, day.UTC().Truncate(24*time.Hour))
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
