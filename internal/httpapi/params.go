package httpapi

import (
	"bytes"
	"encoding/hex"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aethermarket/coordinator/internal/apierr"
)

func hexParam(r *http.Request, name string) ([]byte, error) {
	raw := chi.URLParam(r, name)
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, apierr.BadRequest("invalid_hex", name+" must be valid hex")
	}
	return b, nil
}

// requireSelf fails Forbidden unless the authenticated principal matches
// the path-embedded pubkey, per §4.3 "for provider-scoped endpoints the
// derived principal must equal the endpoint's path-embedded provider pubkey".
func requireSelf(w http.ResponseWriter, r *http.Request, pathParam string) bool {
	pathPubkey, err := hexParam(r, pathParam)
	if err != nil {
		respondError(w, err)
		return false
	}
	if !bytes.Equal(pathPubkey, principalFromCtx(r.Context())) {
		respondError(w, apierr.Forbidden("principal_mismatch", "signer does not match the path-embedded public key"))
		return false
	}
	return true
}
