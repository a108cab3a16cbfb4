package dispatch

import "github.com/holiman/uint256"

// bpsDenominator is the basis-point scale shared with the on-chain side.
var bpsDenominator = uint256.NewInt(10_000)

// PriorityFeeBps computes the priority-fee fraction of the gas price in basis
// points: (gasPrice - baseFee) * 10000 / gasPrice. It returns zero when the
// base fee meets or exceeds the gas price, so the cap only ever binds on a
// genuine premium.
func PriorityFeeBps(gasPrice, baseFee *uint256.Int) uint32 {
	if gasPrice == nil || gasPrice.IsZero() || baseFee == nil {
		return 0
	}
	if baseFee.Cmp(gasPrice) >= 0 {
		return 0
	}
	premium := new(uint256.Int).Sub(gasPrice, baseFee)
	premium.Mul(premium, bpsDenominator)
	premium.Div(premium, gasPrice)
	return uint32(premium.Uint64())
}
