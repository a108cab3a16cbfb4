package oracle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// Oracle values the fund. Implementations must return fresh readings on every
// call; the vault never caches TVL or prices across operations.
type Oracle interface {
	// Valuation returns the fund's total value in the oracle's base unit and
	// the instant the reading was produced.
	Valuation(ctx context.Context) (*big.Int, time.Time, error)
	// Decimals returns the precision of the base unit.
	Decimals(ctx context.Context) (uint8, error)
	// AssetPrice returns the base-unit price of one whole unit of asset.
	AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error)
}

var ErrStaleValuation = shared.Integrity("oracle: valuation unavailable")

type contractOracle struct {
	eth      *ethclient.Client
	contract common.Address
}

// NewContractOracle reads valuations from the fund's on-chain oracle.
func NewContractOracle(eth *ethclient.Client, contract common.Address) Oracle {
	return &contractOracle{eth: eth, contract: contract}
}

var (
	typeUint256, _ = abi.NewType("uint256", "", nil)
	typeUint8, _   = abi.NewType("uint8", "", nil)
	typeAddress, _ = abi.NewType("address", "", nil)
	typeInt256, _  = abi.NewType("int256", "", nil)

	selValuation      = selectorOf("getValuation()")
	selDecimals       = selectorOf("decimals()")
	selAssetOracle    = selectorOf("getAssetOracle(address)")
	selLatestAnswer   = selectorOf("latestAnswer()")
	argsValuation     = abi.Arguments{{Type: typeUint256}, {Type: typeUint256}}
	argsDecimals      = abi.Arguments{{Type: typeUint8}}
	argsAddress       = abi.Arguments{{Type: typeAddress}}
	argsAddressSingle = abi.Arguments{{Type: typeAddress}}
	argsInt256        = abi.Arguments{{Type: typeInt256}}
)

func selectorOf(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func (o *contractOracle) Valuation(ctx context.Context) (*big.Int, time.Time, error) {
	out, err := o.call(ctx, o.contract, selValuation, nil, argsValuation)
	if err != nil {
		return nil, time.Time{}, err
	}
	tvl := out[0].(*big.Int)
	at := time.Unix(out[1].(*big.Int).Int64(), 0).UTC()
	return tvl, at, nil
}

func (o *contractOracle) Decimals(ctx context.Context) (uint8, error) {
	out, err := o.call(ctx, o.contract, selDecimals, nil, argsDecimals)
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

func (o *contractOracle) AssetPrice(ctx context.Context, asset common.Address) (*big.Int, error) {
	input, err := argsAddress.Pack(asset)
	if err != nil {
		return nil, fmt.Errorf("oracle: pack asset: %w", err)
	}
	out, err := o.call(ctx, o.contract, selAssetOracle, input, argsAddressSingle)
	if err != nil {
		return nil, err
	}
	feed := out[0].(common.Address)
	if feed == (common.Address{}) {
		return nil, shared.Policy("oracle: no price feed for asset")
	}
	out, err = o.call(ctx, feed, selLatestAnswer, nil, argsInt256)
	if err != nil {
		return nil, err
	}
	price := out[0].(*big.Int)
	if price.Sign() <= 0 {
		return nil, ErrStaleValuation
	}
	return price, nil
}

func (o *contractOracle) call(ctx context.Context, to common.Address, selector, input []byte, ret abi.Arguments) ([]any, error) {
	data := append(append([]byte{}, selector...), input...)
	raw, err := o.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: call %s: %w", to.Hex(), err)
	}
	out, err := ret.Unpack(raw)
	if err != nil {
		return nil, fmt.Errorf("oracle: decode %s: %w", to.Hex(), err)
	}
	return out, nil
}
