package assets

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// Policy controls how one asset participates in deposits and withdrawals.
// Enabled=false turns everything off regardless of the other flags.
type Policy struct {
	Asset                common.Address
	Enabled              bool
	CanDeposit           bool
	CanWithdraw          bool
	Permissioned         bool
	MinNominalDeposit    *big.Int
	MinNominalWithdrawal *big.Int
}

// DepositAllowed reports whether deposits of this asset are accepted at all.
func (p Policy) DepositAllowed() bool {
	return p.Enabled && p.CanDeposit
}

// WithdrawAllowed reports whether withdrawals of this asset are accepted.
func (p Policy) WithdrawAllowed() bool {
	return p.Enabled && p.CanWithdraw
}

var (
	ErrAssetNotFound = shared.Policy("assets: no policy for asset")
	ErrOnlyFund      = shared.Authorization("assets: only the fund may set policy")
	ErrInvalidPolicy = shared.Intent("assets: minimums must be non-negative")
)
