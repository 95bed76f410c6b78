package httpapi

import (
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aethermarket/coordinator/internal/apierr"
)

type createAccountRequest struct {
	Username        string         `json:"username"`
	Email           string         `json:"email"`
	AuthProvider    string         `json:"auth_provider"`
	Profile         map[string]any `json:"profile"`
	InitialPubkey   string         `json:"initial_pubkey"`
	InitialDeviceID string         `json:"initial_device_name"`
}

// createAccount is unauthenticated: it is how an identity first comes
// into existence, so there is no prior key to sign with.
func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	pubkey, err := hex.DecodeString(req.InitialPubkey)
	if err != nil {
		respondError(w, apierr.BadRequest("invalid_pubkey", "initial_pubkey must be hex"))
		return
	}
	acct, err := h.accounts.Create(r.Context(), req.Username, req.Email, req.AuthProvider, req.Profile, pubkey, req.InitialDeviceID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, acct)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := hexParam(r, "accountID")
	if err != nil {
		respondError(w, err)
		return
	}
	acct, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, acct)
}

type addKeyRequest struct {
	Pubkey     string `json:"pubkey"`
	DeviceName string `json:"device_name"`
}

// addAccountKey is user-authenticated: the caller's own verified key
// authorizes attaching a new key to the same account.
func (h *Handler) addAccountKey(w http.ResponseWriter, r *http.Request) {
	var req addKeyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	pubkey, err := hex.DecodeString(req.Pubkey)
	if err != nil {
		respondError(w, apierr.BadRequest("invalid_pubkey", "pubkey must be hex"))
		return
	}
	acct := accountFromCtx(r.Context())
	key, err := h.accounts.AddPublicKey(r.Context(), acct.ID, pubkey, req.DeviceName)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, key)
}

// disableAccountKey revokes a sibling key of the caller's own account,
// refusing self-disable or removal of the sole active key.
func (h *Handler) disableAccountKey(w http.ResponseWriter, r *http.Request) {
	target, err := hex.DecodeString(chi.URLParam(r, "pubkey"))
	if err != nil {
		respondError(w, apierr.BadRequest("invalid_pubkey", "pubkey must be hex"))
		return
	}
	if err := h.accounts.DisableKey(r.Context(), target, principalFromCtx(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"disabled": true})
}
