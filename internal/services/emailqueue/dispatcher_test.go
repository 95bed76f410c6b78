package emailqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethermarket/coordinator/internal/storage"
)

func TestBackoffScheduleCapsAtLastEntry(t *testing.T) {
	assert.Equal(t, time.Duration(0), backoff(0))
	assert.Equal(t, 60*time.Second, backoff(1))
	assert.Equal(t, 3600*time.Second, backoff(7))
	assert.Equal(t, 3600*time.Second, backoff(100))
}

type fakeEmailStore struct {
	rows   map[int64]storage.EmailQueueEntry
	nextID int64
}

func newFakeEmailStore() *fakeEmailStore {
	return &fakeEmailStore{rows: map[int64]storage.EmailQueueEntry{}}
}

func (f *fakeEmailStore) Enqueue(_ context.Context, e storage.EmailQueueEntry) (storage.EmailQueueEntry, error) {
	f.nextID++
	e.ID = f.nextID
	f.rows[e.ID] = e
	return e, nil
}

func (f *fakeEmailStore) ListDue(_ context.Context, _ func(int) time.Duration, _ time.Time, limit int) ([]storage.EmailQueueEntry, error) {
	var out []storage.EmailQueueEntry
	for _, e := range f.rows {
		if e.Status == storage.EmailStatusPending {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEmailStore) MarkSent(_ context.Context, id int64, now time.Time) error {
	e := f.rows[id]
	e.Status = storage.EmailStatusSent
	e.SentAt = &now
	f.rows[id] = e
	return nil
}

func (f *fakeEmailStore) MarkAttemptFailed(_ context.Context, id int64, lastError string, now time.Time) (storage.EmailQueueEntry, error) {
	e := f.rows[id]
	e.Attempts++
	e.LastError = lastError
	e.LastAttemptedAt = &now
	f.rows[id] = e
	return e, nil
}

func (f *fakeEmailStore) MarkNotifiedRetry(_ context.Context, id int64) error {
	e := f.rows[id]
	e.UserNotifiedRetry = true
	f.rows[id] = e
	return nil
}

func (f *fakeEmailStore) MarkNotifiedGaveUp(_ context.Context, id int64) error {
	e := f.rows[id]
	e.UserNotifiedGaveUp = true
	f.rows[id] = e
	return nil
}

func (f *fakeEmailStore) ExpireStalePending(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeEmailStore) ResetForManualRetry(_ context.Context, id int64, now time.Time) error {
	e := f.rows[id]
	e.Status = storage.EmailStatusPending
	e.Attempts = 0
	e.LastAttemptedAt = &now
	f.rows[id] = e
	return nil
}

// fakeNoticeAccountStore serves a single fixed account with a verified
// email address, the recipient of any retry/gave-up notice.
type fakeNoticeAccountStore struct {
	account storage.Account
}

func (f *fakeNoticeAccountStore) CreateAccount(context.Context, storage.Account) (storage.Account, error) {
	return storage.Account{}, nil
}
func (f *fakeNoticeAccountStore) GetAccount(_ context.Context, id []byte) (storage.Account, error) {
	if string(id) != string(f.account.ID) {
		return storage.Account{}, storage.ErrNotFound
	}
	return f.account, nil
}
func (f *fakeNoticeAccountStore) GetAccountByUsername(context.Context, string) (storage.Account, error) {
	return storage.Account{}, storage.ErrNotFound
}
func (f *fakeNoticeAccountStore) DeleteAccount(context.Context, []byte) error { return nil }
func (f *fakeNoticeAccountStore) AddPublicKey(_ context.Context, k storage.AccountPublicKey) (storage.AccountPublicKey, error) {
	return k, nil
}
func (f *fakeNoticeAccountStore) GetPublicKey(context.Context, []byte) (storage.AccountPublicKey, error) {
	return storage.AccountPublicKey{}, storage.ErrNotFound
}
func (f *fakeNoticeAccountStore) ActiveKeyCount(context.Context, []byte) (int, error) { return 0, nil }
func (f *fakeNoticeAccountStore) DisableKeyTx(context.Context, []byte, []byte) error  { return nil }

type failingSender struct{}

func (failingSender) Send(context.Context, storage.EmailQueueEntry) error {
	return errors.New("smtp: connection refused")
}

func TestTickSendsRetryNoticeOnFirstFailure(t *testing.T) {
	store := newFakeEmailStore()
	entry, err := store.Enqueue(context.Background(), storage.EmailQueueEntry{
		ToAddr: "user@example.com", Subject: "hi", RelatedAccountID: []byte("account-1"),
	})
	require.NoError(t, err)

	accounts := &fakeNoticeAccountStore{account: storage.Account{
		ID: []byte("account-1"), Email: "owner@example.com", EmailVerified: true,
	}}
	d := NewDispatcher(store, accounts, failingSender{}, 10, 7*24*time.Hour, "@every 1s", "@every 1s", "noreply@aethermarket.test", testLogger())

	d.tick(context.Background())

	stored := store.rows[entry.ID]
	assert.Equal(t, 1, stored.Attempts)
	assert.True(t, stored.UserNotifiedRetry, "the retry notice must fire on the first failure, not the third")
	assert.False(t, stored.UserNotifiedGaveUp)

	var notice storage.EmailQueueEntry
	for _, e := range store.rows {
		if e.ID != entry.ID {
			notice = e
		}
	}
	require.NotZero(t, notice.ID, "a retry notice must be enqueued")
	assert.Equal(t, "owner@example.com", notice.ToAddr)
	assert.Equal(t, storage.EmailTypeGeneral, notice.EmailType)
	assert.Empty(t, notice.RelatedAccountID, "a delivery notice must not carry related_account_id, or it could recurse")
}

func TestTickSkipsNoticeWithoutRelatedAccount(t *testing.T) {
	store := newFakeEmailStore()
	_, err := store.Enqueue(context.Background(), storage.EmailQueueEntry{ToAddr: "user@example.com", Subject: "hi"})
	require.NoError(t, err)

	accounts := &fakeNoticeAccountStore{}
	d := NewDispatcher(store, accounts, failingSender{}, 10, 7*24*time.Hour, "@every 1s", "@every 1s", "noreply@aethermarket.test", testLogger())

	d.tick(context.Background())

	assert.Len(t, store.rows, 1, "no notice should be queued for an email with no related_account_id")
}

func TestTickMarksGaveUpAfterExhaustingSchedule(t *testing.T) {
	store := newFakeEmailStore()
	entry, err := store.Enqueue(context.Background(), storage.EmailQueueEntry{
		ToAddr: "user@example.com", Subject: "hi", RelatedAccountID: []byte("account-1"),
	})
	require.NoError(t, err)

	accounts := &fakeNoticeAccountStore{account: storage.Account{
		ID: []byte("account-1"), Email: "owner@example.com", EmailVerified: true,
	}}
	d := NewDispatcher(store, accounts, failingSender{}, 10, 7*24*time.Hour, "@every 1s", "@every 1s", "noreply@aethermarket.test", testLogger())

	for i := 0; i < len(backoffSchedule); i++ {
		d.tick(context.Background())
	}

	stored := store.rows[entry.ID]
	assert.True(t, stored.UserNotifiedGaveUp)

	var gaveUpNotices int
	for _, e := range store.rows {
		if e.ID != entry.ID && e.Subject == gaveUpSubject {
			gaveUpNotices++
		}
	}
	assert.Equal(t, 1, gaveUpNotices)
}
