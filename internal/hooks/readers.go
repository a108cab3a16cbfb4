package hooks

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vaultgate-labs/vaultgate/internal/safe"
)

// PositionInfo is the slice of an NFT liquidity position the validators need.
type PositionInfo struct {
	Token0    common.Address
	Token1    common.Address
	Liquidity *big.Int
}

// PositionReader reads live position state. Ownership must always be read
// from the chain, never from a cached flag, because positions can be
// transferred out-of-band.
type PositionReader interface {
	OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error)
	Position(ctx context.Context, tokenID *big.Int) (PositionInfo, error)
}

// CollateralReader reads the fund's aggregate lending collateral. A zero
// reading after a wind-down call means the lending position is closed.
type CollateralReader interface {
	TotalCollateral(ctx context.Context, account common.Address) (*big.Int, error)
}

var (
	selOwnerOf            = selectorOf("ownerOf(uint256)")
	selPositions          = selectorOf("positions(uint256)")
	selGetUserAccountData = selectorOf("getUserAccountData(address)")

	ownerOfReturn = args(typeAddress)
	// positions() returns (nonce, operator, token0, token1, fee, tickLower,
	// tickUpper, liquidity, feeGrowth0, feeGrowth1, tokensOwed0, tokensOwed1).
	positionsReturn = args(
		mustType("uint96"), typeAddress, typeAddress, typeAddress, typeUint24,
		typeInt24, typeInt24, typeUint128, typeUint256, typeUint256,
		typeUint128, typeUint128,
	)
	accountDataReturn = args(typeUint256, typeUint256, typeUint256, typeUint256, typeUint256, typeUint256)
	oneUint256        = args(typeUint256)
	oneAddress        = args(typeAddress)
)

func ethCall(ctx context.Context, eth *ethclient.Client, to common.Address, sel safe.Selector, input abi.Arguments, ret abi.Arguments, params ...any) ([]any, error) {
	packed, err := input.Pack(params...)
	if err != nil {
		return nil, ErrCalldata
	}
	data := make([]byte, 0, 4+len(packed))
	data = append(data, sel[:]...)
	data = append(data, packed...)
	raw, err := eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("hooks: call %s on %s: %w", sel.Hex(), to.Hex(), err)
	}
	return decode(ret, raw)
}

// ChainPositionReader reads NFT position state from the position manager
// contract.
type ChainPositionReader struct {
	eth     *ethclient.Client
	manager common.Address
}

// NewChainPositionReader binds the reader to a position manager address.
func NewChainPositionReader(eth *ethclient.Client, manager common.Address) *ChainPositionReader {
	return &ChainPositionReader{eth: eth, manager: manager}
}

// OwnerOf returns the current owner of tokenID.
func (r *ChainPositionReader) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	out, err := ethCall(ctx, r.eth, r.manager, selOwnerOf, oneUint256, ownerOfReturn, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(out[0])
}

// Position returns the token pair and remaining liquidity of tokenID.
func (r *ChainPositionReader) Position(ctx context.Context, tokenID *big.Int) (PositionInfo, error) {
	out, err := ethCall(ctx, r.eth, r.manager, selPositions, oneUint256, positionsReturn, tokenID)
	if err != nil {
		return PositionInfo{}, err
	}
	token0, err := asAddress(out[2])
	if err != nil {
		return PositionInfo{}, err
	}
	token1, err := asAddress(out[3])
	if err != nil {
		return PositionInfo{}, err
	}
	liquidity, ok := out[7].(*big.Int)
	if !ok {
		return PositionInfo{}, ErrCalldata
	}
	return PositionInfo{Token0: token0, Token1: token1, Liquidity: liquidity}, nil
}

// ChainCollateralReader reads aggregate collateral from the lending pool.
type ChainCollateralReader struct {
	eth  *ethclient.Client
	pool common.Address
}

// NewChainCollateralReader binds the reader to a lending pool address.
func NewChainCollateralReader(eth *ethclient.Client, pool common.Address) *ChainCollateralReader {
	return &ChainCollateralReader{eth: eth, pool: pool}
}

// TotalCollateral returns the account's total collateral in base units.
func (r *ChainCollateralReader) TotalCollateral(ctx context.Context, account common.Address) (*big.Int, error) {
	out, err := ethCall(ctx, r.eth, r.pool, selGetUserAccountData, oneAddress, accountDataReturn, account)
	if err != nil {
		return nil, err
	}
	collateral, ok := out[0].(*big.Int)
	if !ok {
		return nil, ErrCalldata
	}
	return collateral, nil
}
