package payment

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aethermarket/coordinator/internal/services/ledger"
	"github.com/aethermarket/coordinator/internal/storage"
)

// fakeLedgerStore is the same minimal in-memory projection used by the
// ledger package's own tests, duplicated here to keep this package's test
// suite free of a cross-package test-only dependency.
type fakeLedgerStore struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{balances: map[string]int64{}}
}

func (f *fakeLedgerStore) IngestTransfersTx(_ context.Context, transfers []storage.TokenTransfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range transfers {
		f.balances[string(t.From)] -= t.AmountE9s + t.FeeE9s
		f.balances[string(t.To)] += t.AmountE9s
	}
	return nil
}

func (f *fakeLedgerStore) Balance(_ context.Context, principal []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[string(principal)], nil
}

func TestTokenGatewayCaptureSufficientBalance(t *testing.T) {
	store := newFakeLedgerStore()
	store.balances["alice"] = 1000
	gw := NewTokenGateway(ledger.NewProjector(store))

	res, err := gw.Capture(context.Background(), "alice", 500)
	require.NoError(t, err)
	require.Equal(t, "succeeded", res.Status)
}

func TestTokenGatewayCaptureInsufficientBalance(t *testing.T) {
	store := newFakeLedgerStore()
	store.balances["alice"] = 100
	gw := NewTokenGateway(ledger.NewProjector(store))

	_, err := gw.Capture(context.Background(), "alice", 500)
	require.Error(t, err)
}

func TestTokenGatewayRefundIsPendingExternalSettlement(t *testing.T) {
	gw := NewTokenGateway(ledger.NewProjector(newFakeLedgerStore()))

	res, err := gw.Refund(context.Background(), "intent-1", 200)
	require.NoError(t, err)
	require.Equal(t, "pending_external_settlement", res.Status)
}

func TestTokenGatewayFetchInvoicePDFNotReady(t *testing.T) {
	gw := NewTokenGateway(ledger.NewProjector(newFakeLedgerStore()))

	_, err := gw.FetchInvoicePDF(context.Background(), "invoice-1")
	require.ErrorIs(t, err, ErrNotReady)
}
