package payment

import (
	"context"
	"fmt"

	"github.com/aethermarket/coordinator/internal/services/ledger"
)

// TokenGateway satisfies Gateway for payment_method=token by delegating to
// the ledger projection (C11) instead of an HTTP call: "capture" is a
// balance check (the actual transfer is observed asynchronously from the
// external ledger feed), and "refund" moves no funds and records nothing:
// it only reports the refund as pending external settlement, since the
// coordinator is not the ledger's source of truth.
type TokenGateway struct {
	ledger *ledger.Projector
}

func NewTokenGateway(l *ledger.Projector) *TokenGateway {
	return &TokenGateway{ledger: l}
}

func (g *TokenGateway) Capture(ctx context.Context, principalHex string, amountE9s int64) (CaptureResult, error) {
	ok, err := g.ledger.HasSufficientBalance(ctx, []byte(principalHex), amountE9s)
	if err != nil {
		return CaptureResult{}, err
	}
	if !ok {
		return CaptureResult{}, fmt.Errorf("payment: insufficient token balance")
	}
	return CaptureResult{Status: "succeeded", ID: principalHex}, nil
}

func (g *TokenGateway) Refund(ctx context.Context, intentID string, amountE9s int64) (RefundResult, error) {
	// The coordinator does not hold token custody; the refund is reported
	// as pending for the external ledger to settle, and nothing is stored.
	return RefundResult{Status: "pending_external_settlement", ID: intentID}, nil
}

func (g *TokenGateway) FetchInvoicePDF(ctx context.Context, invoiceID string) ([]byte, error) {
	return nil, ErrNotReady
}
