// EmailStore implements the §4.8 durable queue, grounded on the teacher's
// internal/app/services/gasbank.SettlementPoller backoff-scheduling idiom:
// the dispatcher fetches due rows from here rather than tracking
// per-row backoff in process memory, because the queue must survive
// coordinator restarts.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aethermarket/coordinator/internal/storage"
)

type EmailStore struct {
	db *sql.DB
}

func NewEmailStore(db *sql.DB) *EmailStore { return &EmailStore{db: db} }

func (s *EmailStore) Enqueue(ctx context.Context, e storage.EmailQueueEntry) (storage.EmailQueueEntry, error) {
	e.Status = storage.EmailStatusPending
	e.CreatedAt = time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO email_queue (to_addr, from_addr, subject, body, is_html, email_type, status, attempts, created_at, related_account_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9)
		RETURNING id
	`, e.ToAddr, e.FromAddr, e.Subject, e.Body, e.IsHTML, e.EmailType, e.Status, e.CreatedAt, e.RelatedAccountID)
	if err := row.Scan(&e.ID); err != nil {
		return storage.EmailQueueEntry{}, err
	}
	return e, nil
}

// ListDue fetches pending rows oldest-first, skipping any whose backoff
// window has not yet elapsed (§4.8 dispatcher loop). Filtering on the
// computed backoff happens in Go, not SQL, since backoff(attempts) is a
// small lookup table rather than something worth expressing as a CASE.
func (s *EmailStore) ListDue(ctx context.Context, backoff func(attempts int) time.Duration, now time.Time, limit int) ([]storage.EmailQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, to_addr, from_addr, subject, body, is_html, email_type, status, attempts,
			COALESCE(last_error,''), created_at, last_attempted_at, sent_at, related_account_id,
			user_notified_retry, user_notified_gave_up
		FROM email_queue WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1
	`, limit*4) // overfetch since some will be skipped by backoff
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.EmailQueueEntry
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		if e.LastAttemptedAt != nil && now.Sub(*e.LastAttemptedAt) < backoff(e.Attempts) {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func scanEmail(rows *sql.Rows) (storage.EmailQueueEntry, error) {
	var e storage.EmailQueueEntry
	var lastAttempted, sentAt sql.NullTime
	var relatedAccount []byte
	if err := rows.Scan(&e.ID, &e.ToAddr, &e.FromAddr, &e.Subject, &e.Body, &e.IsHTML, &e.EmailType, &e.Status, &e.Attempts,
		&e.LastError, &e.CreatedAt, &lastAttempted, &sentAt, &relatedAccount, &e.UserNotifiedRetry, &e.UserNotifiedGaveUp); err != nil {
		return storage.EmailQueueEntry{}, err
	}
	if lastAttempted.Valid {
		e.LastAttemptedAt = &lastAttempted.Time
	}
	if sentAt.Valid {
		e.SentAt = &sentAt.Time
	}
	e.RelatedAccountID = relatedAccount
	return e, nil
}

func (s *EmailStore) MarkSent(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_queue SET status = 'sent', sent_at = $2, last_attempted_at = $2 WHERE id = $1
	`, id, now)
	return err
}

func (s *EmailStore) MarkAttemptFailed(ctx context.Context, id int64, lastError string, now time.Time) (storage.EmailQueueEntry, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_queue SET attempts = attempts + 1, last_error = $2, last_attempted_at = $3 WHERE id = $1
	`, id, lastError, now)
	if err != nil {
		return storage.EmailQueueEntry{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, to_addr, from_addr, subject, body, is_html, email_type, status, attempts,
			COALESCE(last_error,''), created_at, last_attempted_at, sent_at, related_account_id,
			user_notified_retry, user_notified_gave_up
		FROM email_queue WHERE id = $1
	`, id)
	var e storage.EmailQueueEntry
	var lastAttempted, sentAt sql.NullTime
	var relatedAccount []byte
	if err := row.Scan(&e.ID, &e.ToAddr, &e.FromAddr, &e.Subject, &e.Body, &e.IsHTML, &e.EmailType, &e.Status, &e.Attempts,
		&e.LastError, &e.CreatedAt, &lastAttempted, &sentAt, &relatedAccount, &e.UserNotifiedRetry, &e.UserNotifiedGaveUp); err != nil {
		return storage.EmailQueueEntry{}, err
	}
	if lastAttempted.Valid {
		e.LastAttemptedAt = &lastAttempted.Time
	}
	if sentAt.Valid {
		e.SentAt = &sentAt.Time
	}
	e.RelatedAccountID = relatedAccount
	return e, nil
}

func (s *EmailStore) MarkNotifiedRetry(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE email_queue SET user_notified_retry = TRUE WHERE id = $1`, id)
	return err
}

func (s *EmailStore) MarkNotifiedGaveUp(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE email_queue SET user_notified_gave_up = TRUE WHERE id = $1`, id)
	return err
}

// ExpireStalePending implements the §4.8 retention sweep: pending rows
// older than the retry window move straight to failed.
func (s *EmailStore) ExpireStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE email_queue SET status = 'failed' WHERE status = 'pending' AND created_at < $1
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *EmailStore) ResetForManualRetry(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_queue SET attempts = 0, last_error = NULL, user_notified_retry = FALSE,
			user_notified_gave_up = FALSE, status = 'pending', created_at = $2
		WHERE id = $1
	`, id, now)
	return err
}
