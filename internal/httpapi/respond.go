// Package httpapi exposes the coordinator's REST surface on a chi.Router,
// generalizing the teacher's internal/app/httpapi handler/writeJSON idiom
// to the {success, data?, error?} envelope and signed-request auth gate
// this spec requires instead of JWT/API-token auth.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/aethermarket/coordinator/internal/apierr"
)

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// respond writes data as the success envelope.
func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// respondError maps err to its taxonomy HTTP status (§7) and writes the
// error envelope. Errors not carrying an *apierr.Error are treated as an
// internal invariant failure so callers never see a bare 500 with no body.
func respondError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Invariant("", err.Error(), err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &errorBody{Kind: string(apiErr.Kind), Reason: apiErr.Reason, Message: apiErr.Message},
	})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierr.BadRequest("malformed_json", err.Error())
	}
	return nil
}
