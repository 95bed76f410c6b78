// LockStore implements the §4.6 provisioning-lock CAS via a plain
// INSERT ... ON CONFLICT DO UPDATE guarded by the existing row's expiry,
// so fairness is serialized entirely through Postgres (§5: "Locking
// discipline... we rely on unique constraints + ON CONFLICT rather than
// pessimistic locks"), not an in-process mutex.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aethermarket/coordinator/internal/storage"
)

type LockStore struct {
	db *sql.DB
}

func NewLockStore(db *sql.DB) *LockStore { return &LockStore{db: db} }

func (s *LockStore) AcquireTx(ctx context.Context, contractID []byte, agentPubkey []byte, ttl time.Duration, nowNs int64) (bool, error) {
	expiresAtNs := nowNs + ttl.Nanoseconds()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO provisioning_locks (contract_id, agent_pubkey, expires_at_ns)
		VALUES ($1, $2, $3)
		ON CONFLICT (contract_id) DO UPDATE SET agent_pubkey = EXCLUDED.agent_pubkey, expires_at_ns = EXCLUDED.expires_at_ns
		WHERE provisioning_locks.expires_at_ns < $4
	`, contractID, agentPubkey, expiresAtNs, nowNs)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}
	// No row affected: either the lock is live under another agent, or (rare)
	// this caller already holds it with an identical tuple. Disambiguate by
	// re-reading ownership.
	var owner []byte
	err = s.db.QueryRowContext(ctx, `SELECT agent_pubkey FROM provisioning_locks WHERE contract_id = $1`, contractID).Scan(&owner)
	if err != nil {
		return false, err
	}
	return string(owner) == string(agentPubkey), nil
}

func (s *LockStore) ReleaseTx(ctx context.Context, contractID []byte, agentPubkey []byte) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM provisioning_locks WHERE contract_id = $1 AND agent_pubkey = $2
	`, contractID, agentPubkey)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *LockStore) Get(ctx context.Context, contractID []byte) (storage.ProvisioningLock, bool, error) {
	var l storage.ProvisioningLock
	err := s.db.QueryRowContext(ctx, `
		SELECT contract_id, agent_pubkey, expires_at_ns FROM provisioning_locks WHERE contract_id = $1
	`, contractID).Scan(&l.ContractID, &l.AgentPubkey, &l.ExpiresAtNs)
	if err == sql.ErrNoRows {
		return storage.ProvisioningLock{}, false, nil
	}
	if err != nil {
		return storage.ProvisioningLock{}, false, err
	}
	return l, true, nil
}
