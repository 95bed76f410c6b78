package httpapi

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aethermarket/coordinator/internal/services/agents"
	"github.com/aethermarket/coordinator/internal/storage"
)

// fakeAgentStore implements storage.AgentStore with only GetDelegation
// backed by real state; requireAgent never exercises the rest.
type fakeAgentStore struct {
	delegations map[string]storage.AgentDelegation
}

func newFakeAgentStore() *fakeAgentStore {
	return &fakeAgentStore{delegations: map[string]storage.AgentDelegation{}}
}

func (f *fakeAgentStore) CreateSetupToken(context.Context, storage.SetupToken) (storage.SetupToken, error) {
	return storage.SetupToken{}, nil
}
func (f *fakeAgentStore) ConsumeSetupTokenTx(context.Context, []byte, []byte, storage.Permission) (storage.AgentDelegation, storage.AgentPool, error) {
	return storage.AgentDelegation{}, storage.AgentPool{}, nil
}
func (f *fakeAgentStore) GetDelegation(_ context.Context, agentPubkey []byte) (storage.AgentDelegation, error) {
	d, ok := f.delegations[string(agentPubkey)]
	if !ok {
		return storage.AgentDelegation{}, storage.ErrNotFound
	}
	return d, nil
}
func (f *fakeAgentStore) RevokeDelegation(_ context.Context, agentPubkey []byte) error {
	d, ok := f.delegations[string(agentPubkey)]
	if !ok {
		return storage.ErrNotFound
	}
	now := time.Now()
	d.RevokedAt = &now
	f.delegations[string(agentPubkey)] = d
	return nil
}
func (f *fakeAgentStore) RecordOrphanSighting(context.Context, []byte, string) (storage.OrphanSighting, error) {
	return storage.OrphanSighting{}, nil
}
func (f *fakeAgentStore) ClearOrphanSighting(context.Context, []byte, string) error { return nil }

func newTestAgentGate(t *testing.T, perms storage.Permission, revoked bool) (*authGate, *agents.Service, ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	store := newFakeAgentStore()
	d := storage.AgentDelegation{AgentPubkey: pub, ProviderPubkey: []byte("provider-1"), PoolID: "pool-1", Permissions: perms}
	if revoked {
		now := time.Now()
		d.RevokedAt = &now
	}
	store.delegations[string(pub)] = d

	gate := newAuthGate(newFakeAuditStore(), 5*time.Minute, 15*time.Minute)
	return gate, agents.NewService(store, nil, nil), pub, priv
}

func TestRequireAgentAllowsSufficientPermission(t *testing.T) {
	gate, svc, pub, priv := newTestAgentGate(t, storage.PermissionHeartbeat, false)
	mw := requireAgent(gate, svc, storage.PermissionHeartbeat)
	srv := mw(echoHandler())

	body := []byte(`{"status":"ok"}`)
	req := signedRequest(t, http.MethodPost, "/x", body, pub, priv, time.Now(), mustNonce(10))
	req.Header.Set("X-Agent-Pubkey", req.Header.Get("X-Public-Key"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAgentRejectsMissingPermission(t *testing.T) {
	gate, svc, pub, priv := newTestAgentGate(t, storage.PermissionHeartbeat, false)
	mw := requireAgent(gate, svc, storage.PermissionTerminate)
	srv := mw(echoHandler())

	body := []byte(`{"status":"ok"}`)
	req := signedRequest(t, http.MethodPost, "/x", body, pub, priv, time.Now(), mustNonce(11))
	req.Header.Set("X-Agent-Pubkey", req.Header.Get("X-Public-Key"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code, "a delegation lacking the required permission bit must be Forbidden")
}

func TestRequireAgentRejectsRevokedDelegation(t *testing.T) {
	gate, svc, pub, priv := newTestAgentGate(t, storage.PermissionHeartbeat, true)
	mw := requireAgent(gate, svc, storage.PermissionHeartbeat)
	srv := mw(echoHandler())

	body := []byte(`{"status":"ok"}`)
	req := signedRequest(t, http.MethodPost, "/x", body, pub, priv, time.Now(), mustNonce(12))
	req.Header.Set("X-Agent-Pubkey", req.Header.Get("X-Public-Key"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}
