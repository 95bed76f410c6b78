package httpapi

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aethermarket/coordinator/internal/apierr"
	"github.com/aethermarket/coordinator/internal/crypto"
	"github.com/aethermarket/coordinator/internal/services/accounts"
	"github.com/aethermarket/coordinator/internal/services/agents"
	"github.com/aethermarket/coordinator/internal/storage"
)

// authGate implements C3: it verifies the caller's signature over the
// exact submitted body bytes, checks clock skew and replay, and resolves
// a principal — generalizing the teacher's wrapWithAuth context-injection
// idiom to signed requests instead of bearer tokens.
type authGate struct {
	audit        storage.AuditStore
	clockSkew    time.Duration
	replayWindow time.Duration
}

func newAuthGate(audit storage.AuditStore, clockSkew, replayWindow time.Duration) *authGate {
	return &authGate{audit: audit, clockSkew: clockSkew, replayWindow: replayWindow}
}

// verify reads the headers, checks skew/replay, verifies the signature
// over body, and records the SignatureAudit row. It returns the decoded
// public key and the raw body bytes (re-attached to r.Body for handlers).
func (g *authGate) verify(w http.ResponseWriter, r *http.Request, pubkeyHeader string) ([]byte, []byte, bool) {
	pubkeyHex := strings.TrimSpace(r.Header.Get(pubkeyHeader))
	sigHex := strings.TrimSpace(r.Header.Get("X-Signature"))
	tsRaw := strings.TrimSpace(r.Header.Get("X-Timestamp"))
	nonceHex := strings.TrimSpace(r.Header.Get("X-Nonce"))

	if pubkeyHex == "" || sigHex == "" || tsRaw == "" || nonceHex == "" {
		respondError(w, apierr.Unauthenticated("MissingHeaders", "signed request headers are required"))
		return nil, nil, false
	}

	pubkey, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		respondError(w, apierr.Unauthenticated("UnknownKey", "public key is not valid hex"))
		return nil, nil, false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		respondError(w, apierr.Unauthenticated("BadSignature", "signature is not valid hex"))
		return nil, nil, false
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != 16 {
		respondError(w, apierr.Unauthenticated("BadSignature", "nonce must be 16 bytes of hex"))
		return nil, nil, false
	}
	tsSeconds, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		respondError(w, apierr.Unauthenticated("ClockSkew", "timestamp must be a unix-seconds integer"))
		return nil, nil, false
	}
	reqTime := time.Unix(tsSeconds, 0).UTC()
	if skew := time.Since(reqTime); skew > g.clockSkew || skew < -g.clockSkew {
		respondError(w, apierr.Unauthenticated("ClockSkew", "request timestamp outside allowed skew"))
		return nil, nil, false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, apierr.BadRequest("unreadable_body", err.Error()))
		return nil, nil, false
	}
	r.Body.Close()

	if !crypto.Verify(pubkey, body, sig) {
		respondError(w, apierr.Unauthenticated("BadSignature", "signature does not match payload"))
		return nil, nil, false
	}

	auditErr := g.audit.CheckAndRecordTx(r.Context(), storage.SignatureAudit{
		Action:    r.Method + " " + r.URL.Path,
		Payload:   body,
		Signature: sig,
		PublicKey: pubkey,
		RequestTS: reqTime,
		Nonce:     nonce,
	}, g.replayWindow)
	if auditErr != nil {
		respondError(w, apierr.Unauthenticated("Replay", "nonce already used within the replay window"))
		return nil, nil, false
	}

	return pubkey, body, true
}

// requireUser authenticates a user-signed request and resolves its
// account, failing Unauthenticated/Forbidden per §4.3 rule 1.
func requireUser(gate *authGate, accts *accounts.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pubkey, body, ok := gate.verify(w, r, "X-Public-Key")
			if !ok {
				return
			}
			acct, _, err := accts.ResolveByPublicKey(r.Context(), pubkey)
			if err != nil {
				respondError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxPrincipalKey, pubkey)
			ctx = context.WithValue(ctx, ctxAccountKey, acct)
			ctx = context.WithValue(ctx, ctxRawBodyKey, body)
			r = r.WithContext(ctx)
			r.Body = io.NopCloser(strings.NewReader(string(body)))
			next.ServeHTTP(w, r)
		})
	}
}

// requireAgent authenticates an agent-delegated request and checks the
// delegation carries required, failing Forbidden otherwise (§4.3, §4.7).
func requireAgent(gate *authGate, agentsSvc *agents.Service, required storage.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pubkey, body, ok := gate.verify(w, r, "X-Agent-Pubkey")
			if !ok {
				return
			}
			delegation, err := agentsSvc.Authorize(r.Context(), pubkey, required)
			if err != nil {
				respondError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxPrincipalKey, pubkey)
			ctx = context.WithValue(ctx, ctxDelegationKey, delegation)
			ctx = context.WithValue(ctx, ctxRawBodyKey, body)
			r = r.WithContext(ctx)
			r.Body = io.NopCloser(strings.NewReader(string(body)))
			next.ServeHTTP(w, r)
		})
	}
}
