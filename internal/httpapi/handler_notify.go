package httpapi

import (
	"net/http"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/storage"
)

type escalateRequest struct {
	Channels []string `json:"channels"`
	Message  string   `json:"message"`
}

type channelResult struct {
	Channel string `json:"channel"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// escalate dispatches message to every requested channel, independently:
// a failure on one channel must not suppress delivery on the others
// (§4.9 "Escalation routing").
func (h *Handler) escalate(w http.ResponseWriter, r *http.Request) {
	acct := accountFromCtx(r.Context())
	var req escalateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		respondError(w, err)
		return
	}
	if len(req.Channels) == 0 {
		respondError(w, apierr.BadRequest("missing_channels", "at least one channel is required"))
		return
	}

	results := make([]channelResult, 0, len(req.Channels))
	for _, channel := range req.Channels {
		recipient, ok := recipientFor(acct, channel)
		if !ok {
			results = append(results, channelResult{Channel: channel, OK: false, Error: "no address on file for this channel"})
			continue
		}
		err := h.notify.Send(r.Context(), channel, acct.ID, recipient, req.Message)
		results = append(results, channelResult{Channel: channel, OK: err == nil, Error: errString(err)})
	}
	respond(w, http.StatusOK, results)
}

// recipientFor reads the per-channel address from the account's free-form
// profile ("telegram", "sms"), falling back to the account's email for the
// email channel.
func recipientFor(acct storage.Account, channel string) (string, bool) {
	if channel == "email" {
		if acct.Email != "" {
			return acct.Email, true
		}
		return "", false
	}
	if acct.Profile == nil {
		return "", false
	}
	v, ok := acct.Profile[channel]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
