package contracts

import (
	"bytes"
	"context"
	"database/sql"
	"time"

	"github.com/aethermarket/coordinator/internal/services/payment"
	"github.com/aethermarket/coordinator/internal/storage"
)

// fakeContractStore is a minimal in-memory stand-in for
// storage.ContractStore, enough to exercise the service layer without a
// database.
type fakeContractStore struct {
	rows map[string]storage.Contract
}

func newFakeContractStore() *fakeContractStore {
	return &fakeContractStore{rows: map[string]storage.Contract{}}
}

func (f *fakeContractStore) CreateContractTx(_ context.Context, c storage.Contract) (storage.Contract, bool, error) {
	key := string(c.ContractID)
	if existing, ok := f.rows[key]; ok {
		return existing, false, nil
	}
	f.rows[key] = c
	return c, true, nil
}

func (f *fakeContractStore) GetContract(_ context.Context, contractID []byte) (storage.Contract, error) {
	c, ok := f.rows[string(contractID)]
	if !ok {
		return storage.Contract{}, sql.ErrNoRows
	}
	return c, nil
}

func (f *fakeContractStore) ListPendingProvision(context.Context, string, string) ([]storage.Contract, error) {
	return nil, nil
}

func (f *fakeContractStore) ListActiveByProvider(context.Context, []byte) ([]storage.Contract, error) {
	return nil, nil
}

func (f *fakeContractStore) ListExpiredActive(_ context.Context, nowNs int64) ([]storage.Contract, error) {
	var out []storage.Contract
	for _, c := range f.rows {
		if c.Status == storage.StatusActive && c.EndTimestampNs != nil && *c.EndTimestampNs <= nowNs {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContractStore) TransitionTx(_ context.Context, contractID []byte, fromStatus, newStatus string, changedBy []byte, _ string, _ int64, mutate func(*sql.Tx, *storage.Contract) error) (storage.Contract, error) {
	c, ok := f.rows[string(contractID)]
	if !ok {
		return storage.Contract{}, sql.ErrNoRows
	}
	if c.Status != fromStatus {
		return storage.Contract{}, errInvalidTransitionFixture
	}
	if err := mutate(nil, &c); err != nil {
		return storage.Contract{}, err
	}
	c.Status = newStatus
	f.rows[string(contractID)] = c
	return c, nil
}

func (f *fakeContractStore) AppendExtensionTx(_ context.Context, contractID []byte, hours int64, paymentE9s int64) (storage.Contract, error) {
	c := f.rows[string(contractID)]
	c.DurationHours += hours
	if c.EndTimestampNs != nil {
		extended := *c.EndTimestampNs + hours*int64(time.Hour)
		c.EndTimestampNs = &extended
	}
	f.rows[string(contractID)] = c
	return c, nil
}

func (f *fakeContractStore) History(context.Context, []byte) ([]storage.ContractStatusHistoryEntry, error) {
	return nil, nil
}

var errInvalidTransitionFixture = sql.ErrTxDone

// fakeOfferingStore serves a single fixed offering.
type fakeOfferingStore struct {
	offering storage.Offering
}

func (f *fakeOfferingStore) CreateOffering(context.Context, storage.Offering) (storage.Offering, error) {
	return storage.Offering{}, nil
}
func (f *fakeOfferingStore) GetOffering(_ context.Context, providerPubkey []byte, offeringID string) (storage.Offering, error) {
	if offeringID != f.offering.OfferingID || !bytes.Equal(providerPubkey, f.offering.ProviderPubkey) {
		return storage.Offering{}, sql.ErrNoRows
	}
	return f.offering, nil
}
func (f *fakeOfferingStore) Search(context.Context, storage.SearchFilter) ([]storage.Offering, error) {
	return nil, nil
}
func (f *fakeOfferingStore) CreatePool(context.Context, storage.AgentPool) (storage.AgentPool, error) {
	return storage.AgentPool{}, nil
}
func (f *fakeOfferingStore) GetPool(context.Context, string) (storage.AgentPool, error) {
	return storage.AgentPool{}, nil
}
func (f *fakeOfferingStore) DeletePool(context.Context, string) error { return nil }
func (f *fakeOfferingStore) PoolIsEmpty(context.Context, string) (bool, error) {
	return true, nil
}

// fakeProviderStore serves a single fixed profile.
type fakeProviderStore struct {
	profile storage.ProviderProfile
}

func (f *fakeProviderStore) UpsertProfile(context.Context, storage.ProviderProfile) error { return nil }
func (f *fakeProviderStore) GetProfile(context.Context, []byte) (storage.ProviderProfile, error) {
	return f.profile, nil
}
func (f *fakeProviderStore) SetTrustScore(context.Context, []byte, int, []string) error { return nil }

// fakeEmailStore is unused by the current transition set but satisfies the
// Service constructor's dependency.
type fakeEmailStore struct{}

func (fakeEmailStore) Enqueue(_ context.Context, e storage.EmailQueueEntry) (storage.EmailQueueEntry, error) {
	return e, nil
}
func (fakeEmailStore) ListDue(context.Context, func(int) time.Duration, time.Time, int) ([]storage.EmailQueueEntry, error) {
	return nil, nil
}
func (fakeEmailStore) MarkSent(context.Context, int64, time.Time) error { return nil }
func (fakeEmailStore) MarkAttemptFailed(_ context.Context, _ int64, _ string, _ time.Time) (storage.EmailQueueEntry, error) {
	return storage.EmailQueueEntry{}, nil
}
func (fakeEmailStore) MarkNotifiedRetry(context.Context, int64) error   { return nil }
func (fakeEmailStore) MarkNotifiedGaveUp(context.Context, int64) error  { return nil }
func (fakeEmailStore) ExpireStalePending(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (fakeEmailStore) ResetForManualRetry(context.Context, int64, time.Time) error { return nil }

// fakeGateway records capture/refund calls and returns a scripted result.
type fakeGateway struct {
	captureStatus      string
	capturedPrincipals []string
	refunds            []int64
}

func (g *fakeGateway) Capture(_ context.Context, principal string, _ int64) (payment.CaptureResult, error) {
	g.capturedPrincipals = append(g.capturedPrincipals, principal)
	return payment.CaptureResult{Status: g.captureStatus, ID: "intent-1"}, nil
}
func (g *fakeGateway) Refund(_ context.Context, _ string, amountE9s int64) (payment.RefundResult, error) {
	g.refunds = append(g.refunds, amountE9s)
	return payment.RefundResult{Status: "succeeded", ID: "refund-1"}, nil
}
func (g *fakeGateway) FetchInvoicePDF(context.Context, string) ([]byte, error) {
	return nil, payment.ErrNotReady
}
