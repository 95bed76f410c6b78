package httpapi

import (
	"encoding/hex"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/services/agents"
)

// pendingProvision lists accepted, payment-succeeded contracts this agent's
// pool (or, absent an explicit one, its location) is eligible to pick up.
func (h *Handler) pendingProvision(w http.ResponseWriter, r *http.Request) {
	delegation := delegationFromCtx(r.Context())
	location := r.URL.Query().Get("location")
	contracts, err := h.agentsSvc.PendingProvision(r.Context(), delegation.PoolID, location)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, contracts)
}

type runningInstanceBody struct {
	ExternalID string `json:"external_id"`
	ContractID string `json:"contract_id"`
}

type reconcileRequest struct {
	RunningInstances []runningInstanceBody `json:"running_instances"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	delegation := delegationFromCtx(r.Context())
	var req reconcileRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}

	instances := make([]agents.RunningInstance, 0, len(req.RunningInstances))
	for _, inst := range req.RunningInstances {
		var contractID []byte
		if inst.ContractID != "" {
			contractID, _ = hex.DecodeString(inst.ContractID)
		}
		instances = append(instances, agents.RunningInstance{ExternalID: inst.ExternalID, ContractID: contractID})
	}

	result, err := h.agentsSvc.Reconcile(r.Context(), principalFromCtx(r.Context()), delegation.ProviderPubkey, instances)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// reportProvisioning handles PUT …/provisioning: status in
// {provisioning, provisioned, failed}; "provisioned" requires non-empty
// instance details (§4.7).
func (h *Handler) reportProvisioning(w http.ResponseWriter, r *http.Request) {
	contractID, err := hexParam(r, "contractID")
	if err != nil {
		respondError(w, err)
		return
	}
	body := rawBodyFromCtx(r.Context())
	status := gjson.GetBytes(body, "status").String()
	agentPubkey := principalFromCtx(r.Context())
	delegation := delegationFromCtx(r.Context())

	switch status {
	case "provisioning":
		contract, err := h.contracts.ReportProvisioningStarted(r.Context(), contractID, agentPubkey, delegation.PoolID)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, contract)
	case "provisioned":
		externalID := gjson.GetBytes(body, "external_instance_id").String()
		details := gjson.GetBytes(body, "instance_details").Raw
		if externalID == "" || details == "" {
			respondError(w, apierr.BadRequest("missing_instance_details", "provisioned status requires non-empty instance details"))
			return
		}
		contract, err := h.contracts.ReportProvisioned(r.Context(), contractID, agentPubkey, externalID, details)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, contract)
	case "failed":
		contract, err := h.contracts.Cancel(r.Context(), contractID, agentPubkey, "provisioning failed")
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, contract)
	default:
		respondError(w, apierr.BadRequest("invalid_status", "status must be provisioning, provisioned, or failed"))
	}
}

func (h *Handler) reportTerminated(w http.ResponseWriter, r *http.Request) {
	contractID, err := hexParam(r, "contractID")
	if err != nil {
		respondError(w, err)
		return
	}
	contract, err := h.contracts.Terminate(r.Context(), contractID, principalFromCtx(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, contract)
}

func (h *Handler) acquireLock(w http.ResponseWriter, r *http.Request) {
	contractID, err := hexParam(r, "contractID")
	if err != nil {
		respondError(w, err)
		return
	}
	acquired, err := h.locks.Acquire(r.Context(), contractID, principalFromCtx(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	if !acquired {
		respondError(w, apierr.Conflict("lock_held", "provisioning lock is currently held by another agent"))
		return
	}
	respond(w, http.StatusOK, map[string]bool{"acquired": true})
}

func (h *Handler) releaseLock(w http.ResponseWriter, r *http.Request) {
	contractID, err := hexParam(r, "contractID")
	if err != nil {
		respondError(w, err)
		return
	}
	released, err := h.locks.Release(r.Context(), contractID, principalFromCtx(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"released": released})
}

// heartbeat reads bandwidth_stats with gjson since its shape varies by
// provisioner type and is only ever logged, never validated by schema.
func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	body := rawBodyFromCtx(r.Context())
	agentVersion := gjson.GetBytes(body, "agent_version").String()
	provisionerType := gjson.GetBytes(body, "provisioner_type").String()
	activeContracts := int(gjson.GetBytes(body, "active_contracts").Int())
	bandwidthStats := gjson.GetBytes(body, "bandwidth_stats")

	h.log.WithField("agent_version", agentVersion).
		WithField("provisioner_type", provisionerType).
		WithField("bandwidth_stats", bandwidthStats.Raw).
		Debug("agent heartbeat")

	result, err := h.agentsSvc.Heartbeat(r.Context(), principalFromCtx(r.Context()), activeContracts, h.baseHeartbeatSecs)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"acknowledged":          result.Acknowledged,
		"next_heartbeat_seconds": result.NextHeartbeatSecs,
	})
}

// consumeSetupToken is unauthenticated: a fresh agent has no delegation
// yet (§4.4 "Consume setup token").
type consumeSetupTokenRequest struct {
	Token       string `json:"token"`
	AgentPubkey string `json:"agent_pubkey"`
}

func (h *Handler) consumeSetupToken(w http.ResponseWriter, r *http.Request) {
	var req consumeSetupTokenRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	token, err := hex.DecodeString(req.Token)
	if err != nil {
		respondError(w, apierr.BadRequest("invalid_token", "token must be hex"))
		return
	}
	agentPubkey, err := hex.DecodeString(req.AgentPubkey)
	if err != nil || len(agentPubkey) != 32 {
		respondError(w, apierr.BadRequest("invalid_pubkey", "agent_pubkey must be 32 bytes of hex"))
		return
	}
	delegation, pool, err := h.agentsSvc.ConsumeSetupToken(r.Context(), token, agentPubkey)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"provider_pubkey":  hex.EncodeToString(delegation.ProviderPubkey),
		"pool":             pool,
		"provisioner_type": pool.ProvisionerType,
		"permissions":      uint32(delegation.Permissions),
	})
}
