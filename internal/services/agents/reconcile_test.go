package agents

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethermarket/coordinator/internal/storage"
)

type fakeAgentStore struct {
	orphans map[string]bool
}

func (f *fakeAgentStore) CreateSetupToken(_ context.Context, t storage.SetupToken) (storage.SetupToken, error) {
	return t, nil
}
func (f *fakeAgentStore) ConsumeSetupTokenTx(context.Context, []byte, []byte, storage.Permission) (storage.AgentDelegation, storage.AgentPool, error) {
	return storage.AgentDelegation{}, storage.AgentPool{}, nil
}
func (f *fakeAgentStore) GetDelegation(_ context.Context, agentPubkey []byte) (storage.AgentDelegation, error) {
	return storage.AgentDelegation{AgentPubkey: agentPubkey, Permissions: storage.PermissionHeartbeat | storage.PermissionReport}, nil
}
func (f *fakeAgentStore) RevokeDelegation(context.Context, []byte) error { return nil }
func (f *fakeAgentStore) RecordOrphanSighting(_ context.Context, _ []byte, externalID string) (storage.OrphanSighting, error) {
	if f.orphans == nil {
		f.orphans = map[string]bool{}
	}
	f.orphans[externalID] = true
	return storage.OrphanSighting{ExternalID: externalID}, nil
}
func (f *fakeAgentStore) ClearOrphanSighting(_ context.Context, _ []byte, externalID string) error {
	delete(f.orphans, externalID)
	return nil
}

type fakeContractLookupStore struct {
	contracts map[string]storage.Contract
}

func (f *fakeContractLookupStore) CreateContractTx(context.Context, storage.Contract) (storage.Contract, bool, error) {
	return storage.Contract{}, false, nil
}
func (f *fakeContractLookupStore) GetContract(_ context.Context, id []byte) (storage.Contract, error) {
	c, ok := f.contracts[string(id)]
	if !ok {
		return storage.Contract{}, errors.New("not found")
	}
	return c, nil
}
func (f *fakeContractLookupStore) ListPendingProvision(context.Context, string, string) ([]storage.Contract, error) {
	return nil, nil
}
func (f *fakeContractLookupStore) ListActiveByProvider(context.Context, []byte) ([]storage.Contract, error) {
	return nil, nil
}
func (f *fakeContractLookupStore) ListExpiredActive(context.Context, int64) ([]storage.Contract, error) {
	return nil, nil
}
func (f *fakeContractLookupStore) TransitionTx(context.Context, []byte, string, string, []byte, string, int64, func(*sql.Tx, *storage.Contract) error) (storage.Contract, error) {
	return storage.Contract{}, nil
}
func (f *fakeContractLookupStore) AppendExtensionTx(context.Context, []byte, int64, int64) (storage.Contract, error) {
	return storage.Contract{}, nil
}
func (f *fakeContractLookupStore) History(context.Context, []byte) ([]storage.ContractStatusHistoryEntry, error) {
	return nil, nil
}

func TestReconcileClassifiesUnknownInstances(t *testing.T) {
	agentStore := &fakeAgentStore{}
	svc := NewService(agentStore, nil, nil)

	result, err := svc.Reconcile(context.Background(), []byte("agent"), []byte("provider"), []RunningInstance{
		{ExternalID: "vm-7"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Keep)
	assert.Empty(t, result.Terminate)
	require.Len(t, result.Unknown, 1)
	assert.Equal(t, "vm-7", result.Unknown[0].ExternalID)
	assert.True(t, agentStore.orphans["vm-7"])
}

func TestHeartbeatPushesBackWhenIdle(t *testing.T) {
	agentStore := &fakeAgentStore{}
	svc := NewService(agentStore, nil, nil)

	result, err := svc.Heartbeat(context.Background(), []byte("agent"), 0, 30)
	require.NoError(t, err)
	assert.True(t, result.Acknowledged)
	assert.Equal(t, 60, result.NextHeartbeatSecs)
}
