// Package registry is the single source of truth for which operator calls are
// permitted and which validators judge them.
package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/safe"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// BindingKey identifies a hook binding. The operator is part of the key so
// different operators can hold disjoint permission sets on the same
// target/selector.
type BindingKey struct {
	Operator  common.Address
	Target    common.Address
	Operation safe.Operation
	Selector  safe.Selector
}

// HookBinding is the value stored per key. A binding is either fully absent
// (no execution permitted) or Defined is true.
type HookBinding struct {
	BindingKey
	Before  common.Address
	After   common.Address
	Defined bool
}

// HasAfter reports whether an after-hook is bound.
func (b HookBinding) HasAfter() bool {
	return b.After != (common.Address{})
}

var (
	// ErrAlreadyDefined rejects re-registering an existing key; intentional
	// changes require an explicit unset-then-set.
	ErrAlreadyDefined = shared.State("registry: hooks already defined for key")
	// ErrNotDefined is returned by Unset when there is nothing to remove.
	ErrNotDefined = shared.State("registry: hooks not defined for key")
	// ErrInvalidBinding rejects bindings with zero addresses or an
	// unsupported operation kind.
	ErrInvalidBinding = shared.Policy("registry: invalid hook binding")
	// ErrOnlyFund guards all mutations.
	ErrOnlyFund = shared.Authorization("registry: only the fund may change bindings")
)

// Validate checks binding shape: target and before-hook must be non-zero and
// the operation must be one of the two supported kinds. The after-hook is
// optional.
func (b HookBinding) Validate() error {
	if b.Target == (common.Address{}) || b.Before == (common.Address{}) {
		return ErrInvalidBinding
	}
	if b.Operator == (common.Address{}) {
		return ErrInvalidBinding
	}
	if !b.Operation.Valid() {
		return ErrInvalidBinding
	}
	return nil
}
