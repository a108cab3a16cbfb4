package hooks

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/portfolio"
	"github.com/vaultgate-labs/vaultgate/internal/safe"
)

// Position-manager selectors. The on-chain functions take a single struct
// argument, but every field is static, so the calldata layout is identical to
// the flattened field list and can be decoded as such.
var (
	selMint              = selectorOf("mint((address,address,uint24,int24,int24,uint256,uint256,uint256,uint256,address,uint256))")
	selIncreaseLiquidity = selectorOf("increaseLiquidity((uint256,uint256,uint256,uint256,uint256,uint256))")
	selDecreaseLiquidity = selectorOf("decreaseLiquidity((uint256,uint128,uint256,uint256,uint256))")
	selCollect           = selectorOf("collect((uint256,address,uint128,uint128))")

	mintLayout = args(typeAddress, typeAddress, typeUint24, typeInt24, typeInt24,
		typeUint256, typeUint256, typeUint256, typeUint256, typeAddress, typeUint256)
	increaseLayout = args(typeUint256, typeUint256, typeUint256, typeUint256, typeUint256, typeUint256)
	decreaseLayout = args(typeUint256, typeUint128, typeUint256, typeUint256, typeUint256)
	collectLayout  = args(typeUint256, typeAddress, typeUint128, typeUint128)

	mintReturn = args(typeUint256, typeUint128, typeUint256, typeUint256)
)

// LiquidityValidator guards the NFT liquidity position manager integration.
// Creating or growing a position requires both pool tokens whitelisted and
// the fund as recipient. Decreasing and collecting on an existing position
// stay allowed after an asset is disabled (wind-down), but always require
// live fund ownership of the position.
type LiquidityValidator struct {
	manager   common.Address
	fund      common.Address
	whitelist WhitelistStore
	reader    PositionReader
	tracker   portfolio.Tracker
	pointer   common.Hash
}

// NewLiquidityValidator wires the validator for one position manager.
func NewLiquidityValidator(manager, fund common.Address, whitelist WhitelistStore, reader PositionReader, tracker portfolio.Tracker) *LiquidityValidator {
	v := &LiquidityValidator{
		manager:   manager,
		fund:      fund,
		whitelist: whitelist,
		reader:    reader,
		tracker:   tracker,
	}
	v.pointer = PositionPointer(v.Name())
	return v
}

// Name implements Validator.
func (v *LiquidityValidator) Name() string { return "liquidity" }

// CheckBefore implements Validator.
func (v *LiquidityValidator) CheckBefore(ctx context.Context, call safe.Call) error {
	if call.Target != v.manager || call.Operation != safe.OperationCall {
		return ErrUnsupportedCall
	}
	switch call.Selector {
	case selMint:
		return v.checkMint(ctx, call.Args)
	case selIncreaseLiquidity:
		return v.checkIncrease(ctx, call.Args)
	case selDecreaseLiquidity:
		return v.checkDecrease(ctx, call.Args)
	case selCollect:
		return v.checkCollect(ctx, call.Args)
	default:
		return ErrUnsupportedCall
	}
}

// CheckAfter implements Validator.
func (v *LiquidityValidator) CheckAfter(ctx context.Context, call safe.Call, result []byte) error {
	switch call.Selector {
	case selMint:
		if _, err := decode(mintReturn, result); err != nil {
			return err
		}
		_, err := v.tracker.PositionOpened(ctx, v.pointer)
		return err
	case selDecreaseLiquidity:
		values, err := decode(decreaseLayout, call.Args)
		if err != nil {
			return err
		}
		tokenID := values[0].(*big.Int)
		info, err := v.reader.Position(ctx, tokenID)
		if err != nil {
			return err
		}
		if info.Liquidity.Sign() == 0 {
			_, err = v.tracker.PositionClosed(ctx, v.pointer)
			return err
		}
		return nil
	default:
		return nil
	}
}

func (v *LiquidityValidator) checkMint(ctx context.Context, data []byte) error {
	values, err := decode(mintLayout, data)
	if err != nil {
		return err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return err
	}
	token1, err := asAddress(values[1])
	if err != nil {
		return err
	}
	recipient, err := asAddress(values[9])
	if err != nil {
		return err
	}
	if err := v.requireWhitelisted(ctx, token0, token1); err != nil {
		return err
	}
	if recipient != v.fund {
		return ErrOnlyFund
	}
	return nil
}

func (v *LiquidityValidator) checkIncrease(ctx context.Context, data []byte) error {
	values, err := decode(increaseLayout, data)
	if err != nil {
		return err
	}
	tokenID := values[0].(*big.Int)
	if err := v.requireOwnership(ctx, tokenID); err != nil {
		return err
	}
	info, err := v.reader.Position(ctx, tokenID)
	if err != nil {
		return err
	}
	return v.requireWhitelisted(ctx, info.Token0, info.Token1)
}

func (v *LiquidityValidator) checkDecrease(ctx context.Context, data []byte) error {
	values, err := decode(decreaseLayout, data)
	if err != nil {
		return err
	}
	return v.requireOwnership(ctx, values[0].(*big.Int))
}

func (v *LiquidityValidator) checkCollect(ctx context.Context, data []byte) error {
	values, err := decode(collectLayout, data)
	if err != nil {
		return err
	}
	recipient, err := asAddress(values[1])
	if err != nil {
		return err
	}
	if recipient != v.fund {
		return ErrOnlyFund
	}
	return v.requireOwnership(ctx, values[0].(*big.Int))
}

func (v *LiquidityValidator) requireOwnership(ctx context.Context, tokenID *big.Int) error {
	owner, err := v.reader.OwnerOf(ctx, tokenID)
	if err != nil {
		return ErrInvalidPosition
	}
	if owner != v.fund {
		return ErrInvalidPosition
	}
	return nil
}

func (v *LiquidityValidator) requireWhitelisted(ctx context.Context, tokens ...common.Address) error {
	for _, token := range tokens {
		ok, err := v.whitelist.Contains(ctx, v.Name(), token)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOnlyWhitelistedTokens
		}
	}
	return nil
}
