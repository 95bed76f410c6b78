// Package locks implements C6, the provisioning-lock manager: an atomic
// acquire/release with TTL over storage.LockStore. The CAS itself lives in
// Postgres (§4.6, §5); this package only carries the default TTL policy.
package locks

import (
	"context"
	"time"

	"github.com/aethermarket/coordinator/internal/storage"
)

type Manager struct {
	store storage.LockStore
	ttl   time.Duration
}

func NewManager(store storage.LockStore, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{store: store, ttl: ttl}
}

// Acquire attempts to take the provisioning lock for contractID on behalf
// of agentPubkey. Exactly one concurrent caller observes acquired=true
// (Testable Property 6); a lock whose TTL has elapsed is reclaimable by
// any agent.
func (m *Manager) Acquire(ctx context.Context, contractID, agentPubkey []byte) (acquired bool, err error) {
	return m.store.AcquireTx(ctx, contractID, agentPubkey, m.ttl, time.Now().UnixNano())
}

// Release drops the lock only if agentPubkey is the current holder.
func (m *Manager) Release(ctx context.Context, contractID, agentPubkey []byte) (released bool, err error) {
	return m.store.ReleaseTx(ctx, contractID, agentPubkey)
}

func (m *Manager) Get(ctx context.Context, contractID []byte) (storage.ProvisioningLock, bool, error) {
	return m.store.Get(ctx, contractID)
}
