// Package safe models the fund's generic "execute as the fund" primitive.
// The fund itself is a multisig wallet exposing a module interface; VaultGate
// only ever acts through it and never holds assets of its own.
package safe

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Operation is the call kind forwarded to the wallet module interface.
type Operation uint8

const (
	// OperationCall is a regular message call.
	OperationCall Operation = 0
	// OperationDelegateCall executes target code in the fund's own context.
	// Higher risk; gated through the same registry as regular calls.
	OperationDelegateCall Operation = 1
)

// Valid reports whether op is one of the two supported kinds.
func (op Operation) Valid() bool {
	return op == OperationCall || op == OperationDelegateCall
}

// Selector is the leading four bytes of calldata identifying the target
// function.
type Selector [4]byte

// SelectorFromBytes copies the first four bytes of b.
func SelectorFromBytes(b []byte) Selector {
	var s Selector
	copy(s[:], b)
	return s
}

// Hex renders the selector as 0x-prefixed hex.
func (s Selector) Hex() string {
	return common.Bytes2Hex(s[:])
}

// Call is a single fund-context call: selector and argument payload are kept
// separate so validators can decode Args against the selector's fixed layout.
type Call struct {
	Target    common.Address
	Operation Operation
	Value     *big.Int
	Selector  Selector
	Args      []byte
}

// Calldata returns the full payload (selector followed by arguments).
func (c Call) Calldata() []byte {
	if c.Selector == (Selector{}) && len(c.Args) == 0 {
		return nil
	}
	data := make([]byte, 0, 4+len(c.Args))
	data = append(data, c.Selector[:]...)
	return append(data, c.Args...)
}

// Result is the outcome of one executed call.
type Result struct {
	Return  []byte
	GasUsed uint64
}

// Executor runs calls in the fund's execution context. Implementations must
// surface the underlying revert reason verbatim when one exists.
type Executor interface {
	// Exec performs one call as the fund and returns its result.
	Exec(ctx context.Context, call Call) (Result, error)

	// Snapshot captures the execution-environment state so a failed batch
	// can be unwound, and Revert restores it. Together they give the
	// dispatcher its all-or-nothing guarantee.
	Snapshot(ctx context.Context) (string, error)
	Revert(ctx context.Context, id string) error
}

// TransferCall builds a plain value transfer from the fund.
func TransferCall(to common.Address, value *big.Int) Call {
	return Call{Target: to, Operation: OperationCall, Value: value}
}

// The two ERC-20 settlement calls the share ledger issues through the module:
// pulling a deposit in and paying a withdrawal out.
var (
	typeAddress, _ = abi.NewType("address", "", nil)
	typeUint256, _ = abi.NewType("uint256", "", nil)

	transferLayout     = abi.Arguments{{Type: typeAddress}, {Type: typeUint256}}
	transferFromLayout = abi.Arguments{{Type: typeAddress}, {Type: typeAddress}, {Type: typeUint256}}

	selTransfer     = SelectorFromBytes(crypto.Keccak256([]byte("transfer(address,uint256)"))[:4])
	selTransferFrom = SelectorFromBytes(crypto.Keccak256([]byte("transferFrom(address,address,uint256)"))[:4])
)

// ERC20TransferCall builds a token transfer out of the fund.
func ERC20TransferCall(token, to common.Address, amount *big.Int) Call {
	args, err := transferLayout.Pack(to, amount)
	if err != nil {
		panic(err)
	}
	return Call{Target: token, Operation: OperationCall, Selector: selTransfer, Args: args}
}

// ERC20TransferFromCall builds a token pull into the fund against an existing
// allowance.
func ERC20TransferFromCall(token, from, to common.Address, amount *big.Int) Call {
	args, err := transferFromLayout.Pack(from, to, amount)
	if err != nil {
		panic(err)
	}
	return Call{Target: token, Operation: OperationCall, Selector: selTransferFrom, Args: args}
}
