// Package payment specifies the payment-gateway boundary (§6, §4.12):
// capture/refund/fetch-invoice, consumed by the contract state machine.
// The gateway SDKs themselves are explicitly out of core scope (§1); these
// are thin net/http clients with a deadline, matching the teacher's
// internal/app/services/oracle HTTP-resolver construction idiom.
package payment

import (
	"context"
	"errors"
	"time"
)

var ErrNotReady = errors.New("payment: invoice not ready")

type CaptureResult struct {
	Status string
	ID     string
}

type RefundResult struct {
	Status string
	ID     string
}

// Gateway is the capability every payment method implements (§6).
type Gateway interface {
	Capture(ctx context.Context, paymentIntentID string, amountE9s int64) (CaptureResult, error)
	Refund(ctx context.Context, intentID string, amountE9s int64) (RefundResult, error)
	FetchInvoicePDF(ctx context.Context, invoiceID string) ([]byte, error)
}

// DefaultTimeout is the per-request deadline every outbound gateway call
// gets (§5: "Every outbound HTTP call... has a per-request deadline").
const DefaultTimeout = 30 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, DefaultTimeout)
}
