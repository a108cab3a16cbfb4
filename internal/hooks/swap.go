package hooks

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/safe"
)

var (
	selExactInputSingle  = selectorOf("exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))")
	selExactOutputSingle = selectorOf("exactOutputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))")

	// tokenIn, tokenOut, fee, recipient, deadline, amount, amountLimit,
	// sqrtPriceLimitX96 — identical layout for both directions.
	swapSingleLayout = args(typeAddress, typeAddress, typeUint24, typeAddress,
		typeUint256, typeUint256, typeUint256, typeUint160)
)

// SwapValidator guards the swap router integration. Both legs of a swap must
// be whitelisted and the proceeds must land on the fund; the whitelist is
// checked on every call in both directions (no wind-down asymmetry for
// swaps).
type SwapValidator struct {
	router    common.Address
	fund      common.Address
	whitelist WhitelistStore
}

// NewSwapValidator wires the validator for one router.
func NewSwapValidator(router, fund common.Address, whitelist WhitelistStore) *SwapValidator {
	return &SwapValidator{router: router, fund: fund, whitelist: whitelist}
}

// Name implements Validator.
func (v *SwapValidator) Name() string { return "swap" }

// CheckBefore implements Validator.
func (v *SwapValidator) CheckBefore(ctx context.Context, call safe.Call) error {
	if call.Target != v.router || call.Operation != safe.OperationCall {
		return ErrUnsupportedCall
	}
	switch call.Selector {
	case selExactInputSingle, selExactOutputSingle:
	default:
		return ErrUnsupportedCall
	}
	values, err := decode(swapSingleLayout, call.Args)
	if err != nil {
		return err
	}
	tokenIn, err := asAddress(values[0])
	if err != nil {
		return err
	}
	tokenOut, err := asAddress(values[1])
	if err != nil {
		return err
	}
	recipient, err := asAddress(values[3])
	if err != nil {
		return err
	}
	for _, token := range []common.Address{tokenIn, tokenOut} {
		ok, err := v.whitelist.Contains(ctx, v.Name(), token)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOnlyWhitelistedTokens
		}
	}
	if recipient != v.fund {
		return ErrOnlyFund
	}
	return nil
}

// CheckAfter implements Validator. Swaps leave no position state behind.
func (v *SwapValidator) CheckAfter(context.Context, safe.Call, []byte) error {
	return nil
}
