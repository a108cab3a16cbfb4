// Package hooks holds the per-protocol transaction validators. Every
// validator implements the same two-phase contract: CheckBefore decodes the
// raw call against the selector's fixed layout and approves or rejects it,
// CheckAfter re-reads protocol state once the call executed and synchronises
// the coarse position flag. Anything not explicitly recognised is rejected.
package hooks

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vaultgate-labs/vaultgate/internal/safe"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

var (
	// ErrOnlyWhitelistedTokens rejects calls touching assets outside the
	// validator's whitelist.
	ErrOnlyWhitelistedTokens = shared.Policy("hooks: token not whitelisted")
	// ErrOnlyFund rejects calls whose recipient or beneficiary is not the
	// fund itself.
	ErrOnlyFund = shared.Authorization("hooks: beneficiary is not the fund")
	// ErrUnsupportedCall rejects selectors and targets the validator does
	// not recognise.
	ErrUnsupportedCall = shared.Policy("hooks: unsupported selector or target")
	// ErrInvalidPosition rejects position operations when the fund no
	// longer owns the position on chain.
	ErrInvalidPosition = shared.State("hooks: position not owned by fund")
	// ErrSpenderNotAllowed rejects approvals to unknown spenders.
	ErrSpenderNotAllowed = shared.Policy("hooks: spender not whitelisted")
	// ErrUnknownValidator means a binding references a hook address nothing
	// is registered for; fail closed.
	ErrUnknownValidator = shared.Policy("hooks: no validator registered for hook address")
)

// Validator is the two-phase hook capability bound through the registry.
type Validator interface {
	Name() string
	CheckBefore(ctx context.Context, call safe.Call) error
	CheckAfter(ctx context.Context, call safe.Call, result []byte) error
}

// PositionPointer derives the constant pointer under which a validator tracks
// its open/closed flag.
func PositionPointer(name string) common.Hash {
	return crypto.Keccak256Hash([]byte("vaultgate.position." + name))
}

// Resolver maps hook addresses (as stored in bindings) to validator
// implementations. The registry holds addresses, not types; the resolver is
// where an address becomes behaviour.
type Resolver struct {
	byAddr map[common.Address]Validator
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{byAddr: make(map[common.Address]Validator)}
}

// Register binds a hook address to a validator.
func (r *Resolver) Register(addr common.Address, v Validator) {
	r.byAddr[addr] = v
}

// Resolve returns the validator for addr, failing closed when unknown.
func (r *Resolver) Resolve(addr common.Address) (Validator, error) {
	v, ok := r.byAddr[addr]
	if !ok {
		return nil, ErrUnknownValidator
	}
	return v, nil
}
