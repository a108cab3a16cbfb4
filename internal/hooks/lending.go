package hooks

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/portfolio"
	"github.com/vaultgate-labs/vaultgate/internal/safe"
)

var (
	selSupply   = selectorOf("supply(address,uint256,address,uint16)")
	selWithdraw = selectorOf("withdraw(address,uint256,address)")
	selBorrow   = selectorOf("borrow(address,uint256,uint256,uint16,address)")
	selRepay    = selectorOf("repay(address,uint256,uint256,address)")

	supplyLayout   = args(typeAddress, typeUint256, typeAddress, typeUint16)
	withdrawLayout = args(typeAddress, typeUint256, typeAddress)
	borrowLayout   = args(typeAddress, typeUint256, typeUint256, typeUint16, typeAddress)
	repayLayout    = args(typeAddress, typeUint256, typeUint256, typeAddress)
)

// LendingValidator guards the lending-pool integration. Supplying collateral
// or taking debt requires the asset whitelisted; repaying debt and pulling
// collateral back out stay allowed after an asset is disabled so positions
// can always be wound down. The beneficiary of every call must be the fund.
// The open/closed flag is a single pointer for the whole pool: it closes only
// once total collateral reads zero.
type LendingValidator struct {
	pool       common.Address
	fund       common.Address
	whitelist  WhitelistStore
	collateral CollateralReader
	tracker    portfolio.Tracker
	pointer    common.Hash
}

// NewLendingValidator wires the validator for one lending pool.
func NewLendingValidator(pool, fund common.Address, whitelist WhitelistStore, collateral CollateralReader, tracker portfolio.Tracker) *LendingValidator {
	v := &LendingValidator{
		pool:       pool,
		fund:       fund,
		whitelist:  whitelist,
		collateral: collateral,
		tracker:    tracker,
	}
	v.pointer = PositionPointer(v.Name())
	return v
}

// Name implements Validator.
func (v *LendingValidator) Name() string { return "lending" }

// CheckBefore implements Validator.
func (v *LendingValidator) CheckBefore(ctx context.Context, call safe.Call) error {
	if call.Target != v.pool || call.Operation != safe.OperationCall {
		return ErrUnsupportedCall
	}
	switch call.Selector {
	case selSupply:
		return v.checkEntry(ctx, supplyLayout, call.Args, 2)
	case selBorrow:
		return v.checkEntry(ctx, borrowLayout, call.Args, 4)
	case selWithdraw:
		return v.checkExit(ctx, withdrawLayout, call.Args, 2)
	case selRepay:
		return v.checkExit(ctx, repayLayout, call.Args, 3)
	default:
		return ErrUnsupportedCall
	}
}

// CheckAfter implements Validator.
func (v *LendingValidator) CheckAfter(ctx context.Context, call safe.Call, _ []byte) error {
	switch call.Selector {
	case selSupply:
		_, err := v.tracker.PositionOpened(ctx, v.pointer)
		return err
	case selWithdraw, selRepay:
		total, err := v.collateral.TotalCollateral(ctx, v.fund)
		if err != nil {
			return err
		}
		if total.Sign() == 0 {
			_, err = v.tracker.PositionClosed(ctx, v.pointer)
			return err
		}
		return nil
	default:
		return nil
	}
}

// checkEntry validates position creation/increase: whitelisted asset and the
// fund as beneficiary.
func (v *LendingValidator) checkEntry(ctx context.Context, layout abi.Arguments, data []byte, beneficiaryIdx int) error {
	values, err := decode(layout, data)
	if err != nil {
		return err
	}
	asset, err := asAddress(values[0])
	if err != nil {
		return err
	}
	ok, err := v.whitelist.Contains(ctx, v.Name(), asset)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOnlyWhitelistedTokens
	}
	return v.requireFund(values[beneficiaryIdx])
}

// checkExit validates wind-down: no whitelist re-check, beneficiary still
// pinned to the fund.
func (v *LendingValidator) checkExit(ctx context.Context, layout abi.Arguments, data []byte, beneficiaryIdx int) error {
	values, err := decode(layout, data)
	if err != nil {
		return err
	}
	return v.requireFund(values[beneficiaryIdx])
}

func (v *LendingValidator) requireFund(value any) error {
	addr, err := asAddress(value)
	if err != nil {
		return err
	}
	if addr != v.fund {
		return ErrOnlyFund
	}
	return nil
}
