package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethermarket/coordinator/internal/logging"
	"github.com/aethermarket/coordinator/internal/storage"
)

type fakeSLAStore struct {
	breaches []storage.NotificationEvent
	alerted  map[string]bool
}

func newFakeSLAStore(breaches ...storage.NotificationEvent) *fakeSLAStore {
	return &fakeSLAStore{breaches: breaches, alerted: map[string]bool{}}
}

func (s *fakeSLAStore) RecordEvent(_ context.Context, e storage.NotificationEvent) (storage.NotificationEvent, error) {
	return e, nil
}

func (s *fakeSLAStore) MarkSLAAlerted(_ context.Context, messageID string) (bool, error) {
	if s.alerted[messageID] {
		return false, nil
	}
	s.alerted[messageID] = true
	return true, nil
}

func (s *fakeSLAStore) PendingBeyondSLA(_ context.Context, _ time.Time) ([]storage.NotificationEvent, error) {
	return s.breaches, nil
}

func (s *fakeSLAStore) IncrementQuota(_ context.Context, _ []byte, _ string, _ time.Time) (int, error) {
	return 0, nil
}

type fakeSLAAccounts struct {
	byID map[string]storage.Account
}

func (a *fakeSLAAccounts) GetAccount(_ context.Context, id []byte) (storage.Account, error) {
	acct, ok := a.byID[string(id)]
	if !ok {
		return storage.Account{}, assert.AnError
	}
	return acct, nil
}

type fakeSLAQueue struct {
	entries []storage.EmailQueueEntry
}

func (q *fakeSLAQueue) Enqueue(_ context.Context, e storage.EmailQueueEntry) (storage.EmailQueueEntry, error) {
	q.entries = append(q.entries, e)
	return e, nil
}

func TestSweepAlertsProviderOnceAndQueuesGeneralEmail(t *testing.T) {
	providerPubkey := []byte("provider-pubkey-bytes")
	ev := storage.NotificationEvent{
		MessageID:      "msg-1",
		RecipientPubkey: []byte("requester-pubkey-bytes"),
		ProviderPubkey: providerPubkey,
		ContractID:     []byte{0xab, 0xcd},
		SLAWindowHours: 4,
		CreatedAt:      time.Now().Add(-6 * time.Hour),
	}
	store := newFakeSLAStore(ev)
	accounts := &fakeSLAAccounts{byID: map[string]storage.Account{
		string(providerPubkey): {ID: providerPubkey, Email: "provider@example.com", EmailVerified: true},
	}}
	queue := &fakeSLAQueue{}

	checker := NewSLAChecker(store, accounts, queue, "noreply@aethermarket.test", logging.NewDefault("sla-test"))
	checker.Sweep(context.Background(), "")

	require.Len(t, queue.entries, 1)
	assert.Equal(t, "provider@example.com", queue.entries[0].ToAddr)
	assert.Equal(t, storage.EmailTypeGeneral, queue.entries[0].EmailType)
	assert.Contains(t, queue.entries[0].Body, "abcd")

	// Idempotent: a second sweep over the same (now alerted) store finds
	// nothing pending, so no second notice goes out.
	store.breaches = nil
	checker.Sweep(context.Background(), "")
	assert.Len(t, queue.entries, 1)
}

func TestSweepSkipsProviderWithoutVerifiedEmail(t *testing.T) {
	providerPubkey := []byte("provider-pubkey-bytes")
	ev := storage.NotificationEvent{
		MessageID:      "msg-2",
		ProviderPubkey: providerPubkey,
		SLAWindowHours: 4,
		CreatedAt:      time.Now().Add(-6 * time.Hour),
	}
	store := newFakeSLAStore(ev)
	accounts := &fakeSLAAccounts{byID: map[string]storage.Account{
		string(providerPubkey): {ID: providerPubkey, Email: "", EmailVerified: false},
	}}
	queue := &fakeSLAQueue{}

	checker := NewSLAChecker(store, accounts, queue, "noreply@aethermarket.test", logging.NewDefault("sla-test"))
	checker.Sweep(context.Background(), "")

	assert.Empty(t, queue.entries)
	assert.True(t, store.alerted["msg-2"], "breach should still be marked alerted even if no email could be sent")
}

func TestSweepSkipsEventsWithNoProviderPubkey(t *testing.T) {
	ev := storage.NotificationEvent{MessageID: "msg-3", SLAWindowHours: 4, CreatedAt: time.Now().Add(-6 * time.Hour)}
	store := newFakeSLAStore(ev)
	queue := &fakeSLAQueue{}

	checker := NewSLAChecker(store, &fakeSLAAccounts{byID: map[string]storage.Account{}}, queue, "noreply@aethermarket.test", logging.NewDefault("sla-test"))
	checker.Sweep(context.Background(), "")

	assert.Empty(t, queue.entries)
}
