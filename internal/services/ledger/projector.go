// Package ledger implements C11: it projects the external append-only
// ledger feed into TokenTransfer rows and a materialized balance map,
// and answers the balance checks the contract engine needs before it
// lets a token-payment contract proceed.
package ledger

import (
	"context"

	"github.com/aethermarket/coordinator/internal/storage"
)

type Projector struct {
	store storage.LedgerStore
}

func NewProjector(store storage.LedgerStore) *Projector {
	return &Projector{store: store}
}

// IngestBlock upserts the block's transfers and adjusts balances in one
// transaction; a transfer that would drive a balance negative rolls the
// whole block back (§4.11 invariant).
func (p *Projector) IngestBlock(ctx context.Context, transfers []storage.TokenTransfer) error {
	return p.store.IngestTransfersTx(ctx, transfers)
}

func (p *Projector) Balance(ctx context.Context, principal []byte) (int64, error) {
	return p.store.Balance(ctx, principal)
}

// HasSufficientBalance is consulted by create_rental_request for
// payment_method=token contracts; external-gateway payments bypass it.
func (p *Projector) HasSufficientBalance(ctx context.Context, principal []byte, amountE9s int64) (bool, error) {
	balance, err := p.store.Balance(ctx, principal)
	if err != nil {
		return false, err
	}
	return balance >= amountE9s, nil
}
