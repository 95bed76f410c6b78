package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethermarket/coordinator/internal/logging"
	"github.com/aethermarket/coordinator/internal/storage"
)

type fakeAccountStore struct {
	accounts map[string]storage.Account
	keys     map[string]storage.AccountPublicKey
	nextKey  int64
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: map[string]storage.Account{}, keys: map[string]storage.AccountPublicKey{}}
}

func (f *fakeAccountStore) CreateAccount(ctx context.Context, a storage.Account) (storage.Account, error) {
	f.accounts[string(a.ID)] = a
	return a, nil
}
func (f *fakeAccountStore) GetAccount(ctx context.Context, id []byte) (storage.Account, error) {
	a, ok := f.accounts[string(id)]
	if !ok {
		return storage.Account{}, storage.ErrNotFound
	}
	return a, nil
}
func (f *fakeAccountStore) GetAccountByUsername(ctx context.Context, username string) (storage.Account, error) {
	for _, a := range f.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return storage.Account{}, storage.ErrNotFound
}
func (f *fakeAccountStore) DeleteAccount(ctx context.Context, id []byte) error {
	delete(f.accounts, string(id))
	return nil
}
func (f *fakeAccountStore) AddPublicKey(ctx context.Context, k storage.AccountPublicKey) (storage.AccountPublicKey, error) {
	f.nextKey++
	k.ID = f.nextKey
	k.IsActive = true
	f.keys[string(k.PublicKey)] = k
	return k, nil
}
func (f *fakeAccountStore) GetPublicKey(ctx context.Context, pubkey []byte) (storage.AccountPublicKey, error) {
	k, ok := f.keys[string(pubkey)]
	if !ok {
		return storage.AccountPublicKey{}, storage.ErrNotFound
	}
	return k, nil
}
func (f *fakeAccountStore) ActiveKeyCount(ctx context.Context, accountID []byte) (int, error) {
	n := 0
	for _, k := range f.keys {
		if string(k.AccountID) == string(accountID) && k.IsActive {
			n++
		}
	}
	return n, nil
}
func (f *fakeAccountStore) DisableKeyTx(ctx context.Context, target []byte, disabledBy []byte) error {
	k, ok := f.keys[string(target)]
	if !ok {
		return storage.ErrNotFound
	}
	k.IsActive = false
	f.keys[string(target)] = k
	return nil
}

func TestCreateAttachesInitialKey(t *testing.T) {
	store := newFakeAccountStore()
	svc := NewService(store, logging.NewDefault("test"))

	pubkey := make([]byte, 32)
	pubkey[0] = 1
	acct, err := svc.Create(context.Background(), "alice", "alice@example.com", "seed", nil, pubkey, "laptop")
	require.NoError(t, err)

	_, key, err := svc.ResolveByPublicKey(context.Background(), pubkey)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, key.AccountID)
	assert.True(t, key.IsActive)
}

func TestResolveByPublicKeyFailsForUnknownKey(t *testing.T) {
	store := newFakeAccountStore()
	svc := NewService(store, logging.NewDefault("test"))

	_, _, err := svc.ResolveByPublicKey(context.Background(), make([]byte, 32))
	assert.Error(t, err)
}
