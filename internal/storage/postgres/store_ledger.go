// LedgerStore projects the external append-only ledger feed (§4.11). The
// negative-balance invariant is checked inside the same transaction as the
// balance mutation, just before COMMIT, so a bad block never lands partially.
package postgres

import (
	"context"
	"database/sql"

	"github.com/aethermarket/coordinator/internal/storage"
)

type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore { return &LedgerStore{db: db} }

func (s *LedgerStore) IngestTransfersTx(ctx context.Context, transfers []storage.TokenTransfer) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range transfers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO token_transfers (from_principal, to_principal, amount_e9s, fee_e9s, memo, block_timestamp_ns, ledger_seq)
			VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7)
			ON CONFLICT (ledger_seq) DO NOTHING
		`, t.From, t.To, t.AmountE9s, t.FeeE9s, t.Memo, t.BlockTimestampNs, t.LedgerSeq); err != nil {
			return err
		}

		if len(t.From) > 0 {
			if err := adjustBalance(ctx, tx, t.From, -(t.AmountE9s + t.FeeE9s)); err != nil {
				return err
			}
		}
		if len(t.To) > 0 {
			if err := adjustBalance(ctx, tx, t.To, t.AmountE9s); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func adjustBalance(ctx context.Context, tx *sql.Tx, principal []byte, delta int64) error {
	var balance int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO token_balances (principal, balance_e9s) VALUES ($1, 0)
		ON CONFLICT (principal) DO NOTHING
	`, principal).Err()
	_ = err // insert-if-absent is allowed to no-op
	if err := tx.QueryRowContext(ctx, `SELECT balance_e9s FROM token_balances WHERE principal = $1 FOR UPDATE`, principal).Scan(&balance); err != nil {
		return err
	}
	newBalance := balance + delta
	if newBalance < 0 {
		return storage.ErrNegativeBalance
	}
	_, err = tx.ExecContext(ctx, `UPDATE token_balances SET balance_e9s = $2 WHERE principal = $1`, principal, newBalance)
	return err
}

func (s *LedgerStore) Balance(ctx context.Context, principal []byte) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `SELECT balance_e9s FROM token_balances WHERE principal = $1`, principal).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
