// Package agents implements C4 (delegation & pools) and the bookkeeping
// half of C7 (agent control plane): pool CRUD, setup-token issuance and
// consumption, delegation lookup, and orphan-sighting tracking. The
// request-dispatch endpoints (pending-provision, reconcile, heartbeat)
// build on top of this service from internal/httpapi.
package agents

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/storage"
)

const setupTokenTTL = 24 * time.Hour

type Service struct {
	agents        storage.AgentStore
	offerings     storage.OfferingStore
	contractStore storage.ContractStore
	now           func() time.Time
}

func NewService(agents storage.AgentStore, offerings storage.OfferingStore, contracts storage.ContractStore) *Service {
	return &Service{agents: agents, offerings: offerings, contractStore: contracts, now: time.Now}
}

// CreatePool allocates pool_id = slug(name) + "-" + short-random, scoped
// to the calling provider (§4.4 "Create pool").
func (s *Service) CreatePool(ctx context.Context, providerPubkey []byte, name, location, provisionerType string) (storage.AgentPool, error) {
	pool := storage.AgentPool{
		PoolID:          slugify(name) + "-" + shortRandom(),
		ProviderPubkey:  providerPubkey,
		Name:            name,
		Location:        location,
		ProvisionerType: provisionerType,
	}
	return s.offerings.CreatePool(ctx, pool)
}

// DeletePool refuses to delete a non-empty pool (§3 AgentPool invariant).
func (s *Service) DeletePool(ctx context.Context, poolID string) error {
	empty, err := s.offerings.PoolIsEmpty(ctx, poolID)
	if err != nil {
		return err
	}
	if !empty {
		return apierr.Conflict("pool_not_empty", "pool has active delegations and cannot be deleted")
	}
	return s.offerings.DeletePool(ctx, poolID)
}

// CreateSetupToken issues a provider-signed, single-use onboarding secret
// (≥256 random bits, §3 SetupToken) with a 24h default TTL.
func (s *Service) CreateSetupToken(ctx context.Context, poolID, label string) (storage.SetupToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return storage.SetupToken{}, apierr.Wrap(err, "generate setup token")
	}
	token := storage.SetupToken{
		Token:     raw,
		PoolID:    poolID,
		Label:     label,
		ExpiresAt: s.now().Add(setupTokenTTL),
	}
	return s.agents.CreateSetupToken(ctx, token)
}

// defaultPermissions grants every scoped capability a newly onboarded
// agent needs; operators narrow it post-hoc via a future revoke/re-grant
// (§4.4 permission bitset).
const defaultPermissions = storage.PermissionProvision | storage.PermissionTerminate | storage.PermissionReport | storage.PermissionHeartbeat

// ConsumeSetupToken redeems a one-time token into a live delegation,
// revoking any earlier delegation for the same agent_pubkey first
// (§4.4(c)-(d); the multi-step transaction itself lives in the store).
func (s *Service) ConsumeSetupToken(ctx context.Context, token []byte, agentPubkey []byte) (storage.AgentDelegation, storage.AgentPool, error) {
	delegation, pool, err := s.agents.ConsumeSetupTokenTx(ctx, token, agentPubkey, defaultPermissions)
	if err != nil {
		return storage.AgentDelegation{}, storage.AgentPool{}, apierr.Wrap(err, "consume setup token")
	}
	return delegation, pool, nil
}

// Authorize resolves the active delegation for agentPubkey and checks it
// carries the required permission, failing Forbidden otherwise (§4.3).
func (s *Service) Authorize(ctx context.Context, agentPubkey []byte, required storage.Permission) (storage.AgentDelegation, error) {
	d, err := s.agents.GetDelegation(ctx, agentPubkey)
	if err != nil {
		return storage.AgentDelegation{}, apierr.Forbidden("unknown_agent", "no delegation for this key")
	}
	if !d.Active() {
		return storage.AgentDelegation{}, apierr.Forbidden("delegation_revoked", "delegation has been revoked")
	}
	if !d.Permissions.Has(required) {
		return storage.AgentDelegation{}, apierr.Forbidden("missing_permission", "delegation lacks the required permission")
	}
	return d, nil
}

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "pool"
	}
	return out
}

func shortRandom() string {
	return uuid.NewString()[:8]
}
