package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aethermarket/coordinator/internal/storage"
)

// fakeLedgerStore mirrors the postgres.LedgerStore transaction semantics:
// a transfer that would drive either side's balance negative rolls the
// whole batch back, leaving prior balances untouched.
type fakeLedgerStore struct {
	mu       sync.Mutex
	balances map[string]int64
	seen     map[int64]bool
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{balances: map[string]int64{}, seen: map[int64]bool{}}
}

func (f *fakeLedgerStore) IngestTransfersTx(_ context.Context, transfers []storage.TokenTransfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	staged := map[string]int64{}
	for k, v := range f.balances {
		staged[k] = v
	}

	for _, t := range transfers {
		if f.seen[t.LedgerSeq] {
			continue
		}
		if len(t.From) > 0 {
			staged[string(t.From)] -= t.AmountE9s + t.FeeE9s
			if staged[string(t.From)] < 0 {
				return storage.ErrNegativeBalance
			}
		}
		if len(t.To) > 0 {
			staged[string(t.To)] += t.AmountE9s
		}
	}

	for _, t := range transfers {
		f.seen[t.LedgerSeq] = true
	}
	f.balances = staged
	return nil
}

func (f *fakeLedgerStore) Balance(_ context.Context, principal []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[string(principal)], nil
}

func TestIngestBlockCreditsAndDebits(t *testing.T) {
	store := newFakeLedgerStore()
	p := NewProjector(store)
	alice := []byte("alice")
	bob := []byte("bob")

	store.balances[string(alice)] = 1000

	err := p.IngestBlock(context.Background(), []storage.TokenTransfer{
		{From: alice, To: bob, AmountE9s: 300, FeeE9s: 10, LedgerSeq: 1},
	})
	require.NoError(t, err)

	aliceBalance, err := p.Balance(context.Background(), alice)
	require.NoError(t, err)
	require.Equal(t, int64(690), aliceBalance)

	bobBalance, err := p.Balance(context.Background(), bob)
	require.NoError(t, err)
	require.Equal(t, int64(300), bobBalance)
}

func TestIngestBlockRejectsNegativeBalance(t *testing.T) {
	store := newFakeLedgerStore()
	p := NewProjector(store)
	alice := []byte("alice")
	bob := []byte("bob")

	store.balances[string(alice)] = 100

	err := p.IngestBlock(context.Background(), []storage.TokenTransfer{
		{From: alice, To: bob, AmountE9s: 500, LedgerSeq: 1},
	})
	require.ErrorIs(t, err, storage.ErrNegativeBalance)

	aliceBalance, err := p.Balance(context.Background(), alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), aliceBalance, "a rejected block must not leave a partial debit")
}

func TestHasSufficientBalance(t *testing.T) {
	store := newFakeLedgerStore()
	p := NewProjector(store)
	alice := []byte("alice")
	store.balances[string(alice)] = 500

	ok, err := p.HasSufficientBalance(context.Background(), alice, 500)
	require.NoError(t, err)
	require.True(t, ok, "balance equal to the requested amount is sufficient")

	ok, err = p.HasSufficientBalance(context.Background(), alice, 501)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHasSufficientBalanceUnknownPrincipal(t *testing.T) {
	store := newFakeLedgerStore()
	p := NewProjector(store)

	ok, err := p.HasSufficientBalance(context.Background(), []byte("stranger"), 1)
	require.NoError(t, err)
	require.False(t, ok)
}
