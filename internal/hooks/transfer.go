package hooks

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/safe"
)

var (
	selTransfer     = selectorOf("transfer(address,uint256)")
	selTransferFrom = selectorOf("transferFrom(address,address,uint256)")
	selApprove      = selectorOf("approve(address,uint256)")

	transferLayout     = args(typeAddress, typeUint256)
	transferFromLayout = args(typeAddress, typeAddress, typeUint256)
	approveLayout      = args(typeAddress, typeUint256)
)

// TransferValidator guards plain token movements. The call target is the
// token itself and must be whitelisted. Tokens may only ever move toward the
// fund: transfer and transferFrom both require the fund as receiver, and
// approvals are limited to spenders on a separate approved-spender set (the
// protocol contracts that pull funds during gated interactions).
type TransferValidator struct {
	fund      common.Address
	whitelist WhitelistStore
}

// NewTransferValidator wires the token-transfer validator.
func NewTransferValidator(fund common.Address, whitelist WhitelistStore) *TransferValidator {
	return &TransferValidator{fund: fund, whitelist: whitelist}
}

// Name implements Validator.
func (v *TransferValidator) Name() string { return "transfer" }

// SpenderNamespace is the whitelist namespace of approved spenders.
func (v *TransferValidator) SpenderNamespace() string { return v.Name() + ":spenders" }

// CheckBefore implements Validator.
func (v *TransferValidator) CheckBefore(ctx context.Context, call safe.Call) error {
	if call.Operation != safe.OperationCall {
		return ErrUnsupportedCall
	}
	ok, err := v.whitelist.Contains(ctx, v.Name(), call.Target)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOnlyWhitelistedTokens
	}
	switch call.Selector {
	case selTransfer:
		values, err := decode(transferLayout, call.Args)
		if err != nil {
			return err
		}
		return v.requireFund(values[0])
	case selTransferFrom:
		values, err := decode(transferFromLayout, call.Args)
		if err != nil {
			return err
		}
		return v.requireFund(values[1])
	case selApprove:
		values, err := decode(approveLayout, call.Args)
		if err != nil {
			return err
		}
		spender, err := asAddress(values[0])
		if err != nil {
			return err
		}
		allowed, err := v.whitelist.Contains(ctx, v.SpenderNamespace(), spender)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrSpenderNotAllowed
		}
		return nil
	default:
		return ErrUnsupportedCall
	}
}

// CheckAfter implements Validator. Transfers leave no position state behind.
func (v *TransferValidator) CheckAfter(context.Context, safe.Call, []byte) error {
	return nil
}

func (v *TransferValidator) requireFund(value any) error {
	to, err := asAddress(value)
	if err != nil {
		return err
	}
	if to != v.fund {
		return ErrOnlyFund
	}
	return nil
}
