package agents

import (
	"bytes"
	"context"

	"github.com/aethermarket/coordinator/internal/storage"
)

// RunningInstance is one entry of an agent's reconcile report.
type RunningInstance struct {
	ExternalID string
	ContractID []byte // empty when the agent can't associate it with a contract
}

type KeepEntry struct {
	ExternalID string
	ContractID []byte
	EndsAt     *int64
}

type TerminateEntry struct {
	ExternalID string
	ContractID []byte
	Reason     string // "cancelled" | "expired"
}

type UnknownEntry struct {
	ExternalID string
	Message    string
}

type ReconcileResult struct {
	Keep      []KeepEntry
	Terminate []TerminateEntry
	Unknown   []UnknownEntry
}

// PendingProvision lists accepted, payment-succeeded contracts eligible for
// this agent to pick up, filtered by explicit pool match or, absent one,
// the pool's location against the offering's datacenter country (§4.7).
func (s *Service) PendingProvision(ctx context.Context, poolID, location string) ([]storage.Contract, error) {
	return s.contracts().ListPendingProvision(ctx, poolID, location)
}

// Reconcile classifies an agent's reported running instances into
// keep/terminate/unknown (§4.7, Testable properties 5-7). An instance
// claiming a contract_id that belongs to a different provider is treated
// the same as having no contract_id: unknown.
func (s *Service) Reconcile(ctx context.Context, agentPubkey []byte, providerPubkey []byte, instances []RunningInstance) (ReconcileResult, error) {
	var result ReconcileResult
	now := s.now().UnixNano()

	for _, inst := range instances {
		if len(inst.ContractID) == 0 {
			result.Unknown = append(result.Unknown, UnknownEntry{ExternalID: inst.ExternalID, Message: "no contract reported"})
			if _, err := s.agents.RecordOrphanSighting(ctx, agentPubkey, inst.ExternalID); err != nil {
				return ReconcileResult{}, err
			}
			continue
		}

		contract, err := s.contracts().GetContract(ctx, inst.ContractID)
		if err != nil || !bytes.Equal(contract.ProviderPubkey, providerPubkey) {
			result.Unknown = append(result.Unknown, UnknownEntry{ExternalID: inst.ExternalID, Message: "no matching contract for this provider"})
			if _, serr := s.agents.RecordOrphanSighting(ctx, agentPubkey, inst.ExternalID); serr != nil {
				return ReconcileResult{}, serr
			}
			continue
		}

		_ = s.agents.ClearOrphanSighting(ctx, agentPubkey, inst.ExternalID)

		switch {
		case contract.Status == storage.StatusCancelled:
			result.Terminate = append(result.Terminate, TerminateEntry{ExternalID: inst.ExternalID, ContractID: contract.ContractID, Reason: "cancelled"})
		case contract.EndTimestampNs != nil && *contract.EndTimestampNs < now:
			result.Terminate = append(result.Terminate, TerminateEntry{ExternalID: inst.ExternalID, ContractID: contract.ContractID, Reason: "expired"})
		default:
			result.Keep = append(result.Keep, KeepEntry{ExternalID: inst.ExternalID, ContractID: contract.ContractID, EndsAt: contract.EndTimestampNs})
		}
	}

	return result, nil
}

// HeartbeatResult mirrors §6's {acknowledged, next_heartbeat_seconds}.
type HeartbeatResult struct {
	Acknowledged       bool
	NextHeartbeatSecs  int
}

// Heartbeat records liveness and tells the agent when to call back again;
// an idle agent (no active contracts) is pushed back to reduce load.
func (s *Service) Heartbeat(ctx context.Context, agentPubkey []byte, activeContracts int, baseIntervalSecs int) (HeartbeatResult, error) {
	if _, err := s.Authorize(ctx, agentPubkey, storage.PermissionHeartbeat); err != nil {
		return HeartbeatResult{}, err
	}
	next := baseIntervalSecs
	if activeContracts == 0 {
		next *= 2
	}
	return HeartbeatResult{Acknowledged: true, NextHeartbeatSecs: next}, nil
}

func (s *Service) contracts() storage.ContractStore {
	return s.contractStore
}
