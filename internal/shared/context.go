package shared

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type contextKey string

const principalKey contextKey = "vaultgate.principal"

// Principal is the authenticated caller of a request, recovered from the
// request signature. The zero value means "unauthenticated".
type Principal struct {
	Address common.Address
}

// ContextWithPrincipal stores the principal on the context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the request principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
