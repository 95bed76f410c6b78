package httpapi

import (
	"context"

	"github.com/aethermarket/coordinator/internal/storage"
)

type ctxKey string

const (
	ctxPrincipalKey   ctxKey = "httpapi.principal"   // []byte, the verified public key
	ctxAccountKey     ctxKey = "httpapi.account"     // storage.Account, user-scoped requests
	ctxDelegationKey  ctxKey = "httpapi.delegation"  // storage.AgentDelegation, agent-scoped requests
	ctxPermissionsKey ctxKey = "httpapi.permissions" // storage.Permission
	ctxRawBodyKey     ctxKey = "httpapi.rawbody"     // []byte, exact submitted payload bytes
)

func principalFromCtx(ctx context.Context) []byte {
	v, _ := ctx.Value(ctxPrincipalKey).([]byte)
	return v
}

func accountFromCtx(ctx context.Context) storage.Account {
	v, _ := ctx.Value(ctxAccountKey).(storage.Account)
	return v
}

func delegationFromCtx(ctx context.Context) storage.AgentDelegation {
	v, _ := ctx.Value(ctxDelegationKey).(storage.AgentDelegation)
	return v
}

func rawBodyFromCtx(ctx context.Context) []byte {
	v, _ := ctx.Value(ctxRawBodyKey).([]byte)
	return v
}
