// Package postgres implements the storage interfaces with database/sql and
// lib/pq, following the teacher's packages/com.r3e.services.accounts
// store_postgres.go idiom: plain parameterized SQL, no ORM, JSON columns
// marshaled/unmarshaled at the boundary, sql.ErrNoRows on zero RowsAffected.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/aethermarket/coordinator/internal/storage"
)

type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore { return &AccountStore{db: db} }

func (s *AccountStore) CreateAccount(ctx context.Context, a storage.Account) (storage.Account, error) {
	a.CreatedAt = time.Now().UTC()
	profileJSON, err := json.Marshal(a.Profile)
	if err != nil {
		return storage.Account{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, username_lower, email, email_verified, auth_provider, is_admin, profile, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
	`, a.ID, a.Username, strings.ToLower(a.Username), a.Email, a.EmailVerified, a.AuthProvider, a.IsAdmin, profileJSON, a.CreatedAt)
	if err != nil {
		return storage.Account{}, err
	}
	return a, nil
}

func (s *AccountStore) GetAccount(ctx context.Context, id []byte) (storage.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(email, ''), email_verified, auth_provider, is_admin, profile, created_at
		FROM accounts WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (s *AccountStore) GetAccountByUsername(ctx context.Context, username string) (storage.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(email, ''), email_verified, auth_provider, is_admin, profile, created_at
		FROM accounts WHERE username_lower = $1
	`, strings.ToLower(username))
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (storage.Account, error) {
	var a storage.Account
	var profileRaw []byte
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.EmailVerified, &a.AuthProvider, &a.IsAdmin, &profileRaw, &a.CreatedAt); err != nil {
		return storage.Account{}, err
	}
	if len(profileRaw) > 0 {
		_ = json.Unmarshal(profileRaw, &a.Profile)
	}
	return a, nil
}

func (s *AccountStore) DeleteAccount(ctx context.Context, id []byte) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *AccountStore) AddPublicKey(ctx context.Context, k storage.AccountPublicKey) (storage.AccountPublicKey, error) {
	k.AddedAt = time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO account_public_keys (account_id, public_key, is_active, added_at, device_name)
		VALUES ($1, $2, TRUE, $3, NULLIF($4, ''))
		RETURNING id
	`, k.AccountID, k.PublicKey, k.AddedAt, k.DeviceName)
	if err := row.Scan(&k.ID); err != nil {
		return storage.AccountPublicKey{}, err
	}
	k.IsActive = true
	return k, nil
}

func (s *AccountStore) GetPublicKey(ctx context.Context, pubkey []byte) (storage.AccountPublicKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, public_key, is_active, added_at, disabled_at, disabled_by_key_id, COALESCE(device_name, '')
		FROM account_public_keys WHERE public_key = $1
	`, pubkey)
	var k storage.AccountPublicKey
	var disabledAt sql.NullTime
	var disabledBy sql.NullInt64
	if err := row.Scan(&k.ID, &k.AccountID, &k.PublicKey, &k.IsActive, &k.AddedAt, &disabledAt, &disabledBy, &k.DeviceName); err != nil {
		return storage.AccountPublicKey{}, err
	}
	if disabledAt.Valid {
		k.DisabledAt = &disabledAt.Time
	}
	if disabledBy.Valid {
		k.DisabledByKeyID = &disabledBy.Int64
	}
	return k, nil
}

func (s *AccountStore) ActiveKeyCount(ctx context.Context, accountID []byte) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM account_public_keys WHERE account_id = $1 AND is_active = TRUE
	`, accountID).Scan(&n)
	return n, err
}

// ErrSelfDisable / ErrSoleActiveKey implement Testable Property 10: disabling
// the sole active key, or a key disabling itself, both fail Conflict.
var (
	ErrSelfDisable    = errors.New("postgres: a key cannot disable itself")
	ErrSoleActiveKey  = errors.New("postgres: cannot disable the sole active key")
)

func (s *AccountStore) DisableKeyTx(ctx context.Context, target []byte, disabledBy []byte) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var targetID, byID int64
	var accountID []byte
	if err := tx.QueryRowContext(ctx, `SELECT id, account_id FROM account_public_keys WHERE public_key = $1 AND is_active = TRUE FOR UPDATE`, target).Scan(&targetID, &accountID); err != nil {
		return err
	}
	if err := tx.QueryRowContext(ctx, `SELECT id FROM account_public_keys WHERE public_key = $1 AND account_id = $2 AND is_active = TRUE`, disabledBy, accountID).Scan(&byID); err != nil {
		return err
	}
	if targetID == byID {
		return ErrSelfDisable
	}

	var activeCount int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM account_public_keys WHERE account_id = $1 AND is_active = TRUE`, accountID).Scan(&activeCount); err != nil {
		return err
	}
	if activeCount <= 1 {
		return ErrSoleActiveKey
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE account_public_keys SET is_active = FALSE, disabled_at = now(), disabled_by_key_id = $2 WHERE id = $1
	`, targetID, byID); err != nil {
		return err
	}
	return tx.Commit()
}
