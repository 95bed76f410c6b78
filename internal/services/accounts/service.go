// Package accounts implements account creation and public-key lifecycle
// management, the identity side of C1/C3: every account must carry at
// least one active Ed25519 public key, and disabling a key is guarded
// against a key disabling itself or removing the sole active key.
package accounts

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/logging"
	"github.com/aethermarket/coordinator/internal/storage"
)

type Service struct {
	store storage.AccountStore
	log   *logging.Logger
}

func NewService(store storage.AccountStore, log *logging.Logger) *Service {
	return &Service{store: store, log: log}
}

// Create provisions a new account along with its first active public key,
// satisfying the "at least one active key per account" invariant from the
// moment the row exists.
func (s *Service) Create(ctx context.Context, username, email, authProvider string, profile map[string]any, initialPubkey []byte, deviceName string) (storage.Account, error) {
	if username == "" {
		return storage.Account{}, apierr.BadRequest("missing_username", "username is required")
	}
	if len(initialPubkey) != 32 {
		return storage.Account{}, apierr.BadRequest("invalid_pubkey", "initial public key must be 32 bytes")
	}

	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return storage.Account{}, apierr.Invariant("id_generation", "failed to generate account id", err)
	}

	acct := storage.Account{
		ID:           id,
		Username:     username,
		Email:        email,
		AuthProvider: authProvider,
		Profile:      profile,
	}
	created, err := s.store.CreateAccount(ctx, acct)
	if err != nil {
		return storage.Account{}, apierr.Wrap(err, "create account")
	}

	if _, err := s.store.AddPublicKey(ctx, storage.AccountPublicKey{
		AccountID:  created.ID,
		PublicKey:  initialPubkey,
		DeviceName: deviceName,
	}); err != nil {
		return storage.Account{}, apierr.Wrap(err, "attach initial public key")
	}

	s.log.WithField("account_id", fmt.Sprintf("%x", created.ID)).Info("account created")
	return created, nil
}

func (s *Service) Get(ctx context.Context, id []byte) (storage.Account, error) {
	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return storage.Account{}, apierr.NotFound("account_not_found", "account not found")
	}
	return acct, nil
}

// ResolveByPublicKey is the lookup C3's auth gate performs on every signed
// request: active key → owning account.
func (s *Service) ResolveByPublicKey(ctx context.Context, pubkey []byte) (storage.Account, storage.AccountPublicKey, error) {
	key, err := s.store.GetPublicKey(ctx, pubkey)
	if err != nil || !key.IsActive {
		return storage.Account{}, storage.AccountPublicKey{}, apierr.Unauthenticated("UnknownKey", "public key is not registered or not active")
	}
	acct, err := s.store.GetAccount(ctx, key.AccountID)
	if err != nil {
		return storage.Account{}, storage.AccountPublicKey{}, apierr.Unauthenticated("UnknownKey", "account for key not found")
	}
	return acct, key, nil
}

// AddPublicKey attaches a new key to an account, the requesting key
// already having been authenticated by the caller (C3).
func (s *Service) AddPublicKey(ctx context.Context, accountID, pubkey []byte, deviceName string) (storage.AccountPublicKey, error) {
	if len(pubkey) != 32 {
		return storage.AccountPublicKey{}, apierr.BadRequest("invalid_pubkey", "public key must be 32 bytes")
	}
	k, err := s.store.AddPublicKey(ctx, storage.AccountPublicKey{
		AccountID:  accountID,
		PublicKey:  pubkey,
		DeviceName: deviceName,
	})
	if err != nil {
		return storage.AccountPublicKey{}, apierr.Wrap(err, "add public key")
	}
	return k, nil
}

// DisableKey revokes target, refusing a key disabling itself or the sole
// remaining active key (Testable Property 10).
func (s *Service) DisableKey(ctx context.Context, target, disabledBy []byte) error {
	if err := s.store.DisableKeyTx(ctx, target, disabledBy); err != nil {
		return apierr.Conflict("key_disable_rejected", err.Error())
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id []byte) error {
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return apierr.Wrap(err, "delete account")
	}
	return nil
}
