package httpapi

import (
	"bytes"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/crypto"
	"github.com/aethermarket/coordinator/internal/services/contracts"
	"github.com/aethermarket/coordinator/internal/storage"
)

type contractSignRequestBody struct {
	RequesterPubkey    string `json:"requester_pubkey"`
	ProviderPubkey     string `json:"provider_pubkey"`
	OfferingID         string `json:"offering_id"`
	PaymentAmountE9s   int64  `json:"payment_amount_e9s"`
	Currency           string `json:"currency"`
	PaymentMethod      string `json:"payment_method"`
	DurationHours      int64  `json:"duration_hours"`
	RequesterSSHPubkey string `json:"requester_ssh_pubkey"`
	RequesterContact   string `json:"requester_contact"`
	Memo               string `json:"memo"`
	Nonce              string `json:"nonce"`
	TimestampNs        int64  `json:"timestamp_ns"`
	Signature          string `json:"signature"`
}

// createContract verifies the signature over the request's own canonical
// wire encoding rather than the generic requireUser body-signing gate,
// because §4.5/§9 tie ContractID and the signed payload to that exact
// encoding: resigning a re-serialized JSON body would change the bytes a
// client actually signed.
func (h *Handler) createContract(w http.ResponseWriter, r *http.Request) {
	var body contractSignRequestBody
	if err := decodeJSON(r.Body, &body); err != nil {
		respondError(w, err)
		return
	}

	requesterPubkey, err := hex.DecodeString(body.RequesterPubkey)
	if err != nil {
		respondError(w, apierr.BadRequest("invalid_pubkey", "requester_pubkey must be hex"))
		return
	}
	providerPubkey, err := hex.DecodeString(body.ProviderPubkey)
	if err != nil {
		respondError(w, apierr.BadRequest("invalid_pubkey", "provider_pubkey must be hex"))
		return
	}
	nonce, err := hex.DecodeString(body.Nonce)
	if err != nil || len(nonce) != 16 {
		respondError(w, apierr.BadRequest("invalid_nonce", "nonce must be 16 bytes of hex"))
		return
	}
	sig, err := hex.DecodeString(body.Signature)
	if err != nil {
		respondError(w, apierr.Unauthenticated("BadSignature", "signature must be hex"))
		return
	}

	reqTime := time.Unix(0, body.TimestampNs).UTC()
	if skew := time.Since(reqTime); skew > h.clockSkew || skew < -h.clockSkew {
		respondError(w, apierr.Unauthenticated("ClockSkew", "request timestamp outside allowed skew"))
		return
	}

	signReq := contracts.SignRequest{
		RequesterPubkey:    requesterPubkey,
		ProviderPubkey:     providerPubkey,
		OfferingID:         body.OfferingID,
		PaymentAmountE9s:   body.PaymentAmountE9s,
		Currency:           body.Currency,
		PaymentMethod:      body.PaymentMethod,
		DurationHours:      body.DurationHours,
		RequesterSSHPubkey: body.RequesterSSHPubkey,
		RequesterContact:   body.RequesterContact,
		Memo:               body.Memo,
		Nonce:              nonce,
		TimestampNs:        body.TimestampNs,
	}
	encoded := signReq.Encode()
	if !crypto.Verify(requesterPubkey, encoded, sig) {
		respondError(w, apierr.Unauthenticated("BadSignature", "signature does not match the canonical payload"))
		return
	}

	if err := h.audit.CheckAndRecordTx(r.Context(), storage.SignatureAudit{
		Action:    "POST /contracts",
		Payload:   encoded,
		Signature: sig,
		PublicKey: requesterPubkey,
		RequestTS: reqTime,
		Nonce:     nonce,
	}, h.replayWindow); err != nil {
		respondError(w, apierr.Unauthenticated("Replay", "nonce already used within the replay window"))
		return
	}

	contract, err := h.contracts.CreateRentalRequest(r.Context(), signReq)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, contract)
}

func (h *Handler) getContract(w http.ResponseWriter, r *http.Request) {
	id, err := hexParam(r, "contractID")
	if err != nil {
		respondError(w, err)
		return
	}
	contract, err := h.contractStore.GetContract(r.Context(), id)
	if err != nil {
		respondError(w, apierr.NotFound("contract_not_found", "contract does not exist"))
		return
	}
	respond(w, http.StatusOK, contract)
}

// acceptContract requires the signer to be the contract's provider.
func (h *Handler) acceptContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := hexParam(r, "contractID")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.requireProviderOf(r, contractID); err != nil {
		respondError(w, err)
		return
	}
	contract, err := h.contracts.Accept(r.Context(), contractID, principalFromCtx(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, contract)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) rejectContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := hexParam(r, "contractID")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.requireProviderOf(r, contractID); err != nil {
		respondError(w, err)
		return
	}
	var req rejectRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	contract, err := h.contracts.Reject(r.Context(), contractID, principalFromCtx(r.Context()), req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, contract)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// cancelContract allows either the requester or the provider to sign the
// cancellation; ownership is checked against both principals (§4.5).
func (h *Handler) cancelContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := hexParam(r, "contractID")
	if err != nil {
		respondError(w, err)
		return
	}
	contract, err := h.contractStore.GetContract(r.Context(), contractID)
	if err != nil {
		respondError(w, apierr.NotFound("contract_not_found", "contract does not exist"))
		return
	}
	principal := principalFromCtx(r.Context())
	if !bytes.Equal(principal, contract.RequesterPubkey) && !bytes.Equal(principal, contract.ProviderPubkey) {
		respondError(w, apierr.Forbidden("not_a_party", "signer is neither the requester nor the provider"))
		return
	}
	var req cancelRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	updated, err := h.contracts.Cancel(r.Context(), contractID, principal, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

type extendRequest struct {
	ExtensionHours int64 `json:"extension_hours"`
}

func (h *Handler) extendContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := hexParam(r, "contractID")
	if err != nil {
		respondError(w, err)
		return
	}
	contract, err := h.contractStore.GetContract(r.Context(), contractID)
	if err != nil {
		respondError(w, apierr.NotFound("contract_not_found", "contract does not exist"))
		return
	}
	if !bytes.Equal(principalFromCtx(r.Context()), contract.RequesterPubkey) {
		respondError(w, apierr.Forbidden("not_requester", "only the requester may extend"))
		return
	}
	var req extendRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	updated, err := h.contracts.Extend(r.Context(), contractID, req.ExtensionHours)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (h *Handler) requireProviderOf(r *http.Request, contractID []byte) error {
	contract, err := h.contractStore.GetContract(r.Context(), contractID)
	if err != nil {
		return apierr.NotFound("contract_not_found", "contract does not exist")
	}
	if !bytes.Equal(principalFromCtx(r.Context()), contract.ProviderPubkey) {
		return apierr.Forbidden("not_provider", "only the contract's provider may perform this action")
	}
	return nil
}
