package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aethermarket/coordinator/internal/storage"
)

var (
	ErrSetupTokenUsed    = errors.New("postgres: setup token already used")
	ErrSetupTokenExpired = errors.New("postgres: setup token expired")
)

type AgentStore struct {
	db *sql.DB
}

func NewAgentStore(db *sql.DB) *AgentStore { return &AgentStore{db: db} }

func (s *AgentStore) CreateSetupToken(ctx context.Context, t storage.SetupToken) (storage.SetupToken, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO setup_tokens (token, pool_id, label, expires_at)
		VALUES ($1,$2,NULLIF($3,''),$4)
	`, t.Token, t.PoolID, t.Label, t.ExpiresAt)
	if err != nil {
		return storage.SetupToken{}, err
	}
	return t, nil
}

// ConsumeSetupTokenTx implements §4.4's four-step atomic consume: load+check,
// mark used, revoke any earlier delegation for the agent, insert the new one.
func (s *AgentStore) ConsumeSetupTokenTx(ctx context.Context, token []byte, agentPubkey []byte, defaultPerms storage.Permission) (storage.AgentDelegation, storage.AgentPool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return storage.AgentDelegation{}, storage.AgentPool{}, err
	}
	defer tx.Rollback()

	var poolID string
	var expiresAt time.Time
	var usedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT pool_id, expires_at, used_at FROM setup_tokens WHERE token = $1 FOR UPDATE
	`, token).Scan(&poolID, &expiresAt, &usedAt)
	if err != nil {
		return storage.AgentDelegation{}, storage.AgentPool{}, err
	}
	if usedAt.Valid {
		return storage.AgentDelegation{}, storage.AgentPool{}, ErrSetupTokenUsed
	}
	if time.Now().After(expiresAt) {
		return storage.AgentDelegation{}, storage.AgentPool{}, ErrSetupTokenExpired
	}

	var pool storage.AgentPool
	if err := tx.QueryRowContext(ctx, `
		SELECT pool_id, provider_pubkey, name, location, provisioner_type, created_at FROM agent_pools WHERE pool_id = $1
	`, poolID).Scan(&pool.PoolID, &pool.ProviderPubkey, &pool.Name, &pool.Location, &pool.ProvisionerType, &pool.CreatedAt); err != nil {
		return storage.AgentDelegation{}, storage.AgentPool{}, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE setup_tokens SET used_at = now() WHERE token = $1`, token); err != nil {
		return storage.AgentDelegation{}, storage.AgentPool{}, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE agent_delegations SET revoked_at = now() WHERE agent_pubkey = $1 AND revoked_at IS NULL`, agentPubkey); err != nil {
		return storage.AgentDelegation{}, storage.AgentPool{}, err
	}

	delegation := storage.AgentDelegation{
		AgentPubkey:    agentPubkey,
		ProviderPubkey: pool.ProviderPubkey,
		PoolID:         poolID,
		Permissions:    defaultPerms,
		CreatedAt:      time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agent_delegations (agent_pubkey, provider_pubkey, pool_id, permissions, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (agent_pubkey) DO UPDATE SET provider_pubkey = EXCLUDED.provider_pubkey,
			pool_id = EXCLUDED.pool_id, permissions = EXCLUDED.permissions, created_at = EXCLUDED.created_at, revoked_at = NULL
	`, delegation.AgentPubkey, delegation.ProviderPubkey, delegation.PoolID, delegation.Permissions, delegation.CreatedAt); err != nil {
		return storage.AgentDelegation{}, storage.AgentPool{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.AgentDelegation{}, storage.AgentPool{}, err
	}
	return delegation, pool, nil
}

func (s *AgentStore) GetDelegation(ctx context.Context, agentPubkey []byte) (storage.AgentDelegation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT agent_pubkey, provider_pubkey, COALESCE(pool_id,''), permissions, created_at, revoked_at
		FROM agent_delegations WHERE agent_pubkey = $1
	`, agentPubkey)
	var d storage.AgentDelegation
	var revokedAt sql.NullTime
	if err := row.Scan(&d.AgentPubkey, &d.ProviderPubkey, &d.PoolID, &d.Permissions, &d.CreatedAt, &revokedAt); err != nil {
		return storage.AgentDelegation{}, err
	}
	if revokedAt.Valid {
		d.RevokedAt = &revokedAt.Time
	}
	return d, nil
}

func (s *AgentStore) RevokeDelegation(ctx context.Context, agentPubkey []byte) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agent_delegations SET revoked_at = now() WHERE agent_pubkey = $1 AND revoked_at IS NULL
	`, agentPubkey)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *AgentStore) RecordOrphanSighting(ctx context.Context, agentPubkey []byte, externalID string) (storage.OrphanSighting, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO orphan_sightings (agent_pubkey, external_id, first_seen)
		VALUES ($1,$2,now())
		ON CONFLICT (agent_pubkey, external_id) DO UPDATE SET agent_pubkey = EXCLUDED.agent_pubkey
		RETURNING agent_pubkey, external_id, first_seen
	`, agentPubkey, externalID)
	var o storage.OrphanSighting
	if err := row.Scan(&o.AgentPubkey, &o.ExternalID, &o.FirstSeen); err != nil {
		return storage.OrphanSighting{}, err
	}
	return o, nil
}

func (s *AgentStore) ClearOrphanSighting(ctx context.Context, agentPubkey []byte, externalID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM orphan_sightings WHERE agent_pubkey = $1 AND external_id = $2`, agentPubkey, externalID)
	return err
}
