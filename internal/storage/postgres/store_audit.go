// AuditStore implements durable replay protection (§4.3), replacing the
// teacher's process-local infrastructure/security.ReplayProtection map
// with a row that survives coordinator restarts and is shared across
// replicas — the same "seen nonce" idea, made durable.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/aethermarket/coordinator/internal/storage"
)

// ErrReplay is returned when (public_key, nonce) was already recorded
// within the configured replay window.
var ErrReplay = errors.New("postgres: nonce already used within replay window")

type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore { return &AuditStore{db: db} }

func (s *AuditStore) CheckAndRecordTx(ctx context.Context, a storage.SignatureAudit, window time.Duration) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM signature_audit
		WHERE public_key = $1 AND nonce = $2 AND recorded_at > $3
	`, a.PublicKey, a.Nonce, time.Now().Add(-window)).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return ErrReplay
	}

	a.RequestTS = a.RequestTS.UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO signature_audit (account_id, action, payload, signature, public_key, request_ts, nonce, is_admin_action)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, nullableBytes(a.AccountID), a.Action, a.Payload, a.Signature, a.PublicKey, a.RequestTS, a.Nonce, a.IsAdminAction)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrReplay
		}
		return err
	}

	return tx.Commit()
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
