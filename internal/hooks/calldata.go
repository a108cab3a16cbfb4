package hooks

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vaultgate-labs/vaultgate/internal/safe"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// ErrCalldata rejects payloads that do not match the selector's fixed layout.
// Decode failures are policy violations, never undefined behaviour.
var ErrCalldata = shared.Policy("hooks: calldata does not match selector layout")

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("hooks: bad abi type %q: %v", t, err))
	}
	return typ
}

var (
	typeAddress = mustType("address")
	typeUint256 = mustType("uint256")
	typeUint160 = mustType("uint160")
	typeUint128 = mustType("uint128")
	typeUint24  = mustType("uint24")
	typeUint16  = mustType("uint16")
	typeInt24   = mustType("int24")
)

func args(types ...abi.Type) abi.Arguments {
	out := make(abi.Arguments, len(types))
	for i, t := range types {
		out[i] = abi.Argument{Type: t}
	}
	return out
}

// selectorOf hashes a canonical function signature down to its selector.
func selectorOf(signature string) safe.Selector {
	return safe.SelectorFromBytes(crypto.Keccak256([]byte(signature))[:4])
}

// decode unpacks data against layout, converting any failure into ErrCalldata.
func decode(layout abi.Arguments, data []byte) ([]any, error) {
	values, err := layout.Unpack(data)
	if err != nil {
		return nil, ErrCalldata
	}
	return values, nil
}

// asAddress extracts an address value from a decoded slot.
func asAddress(v any) (common.Address, error) {
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, ErrCalldata
	}
	return addr, nil
}
