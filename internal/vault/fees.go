package vault

import "math/big"

const feeDenominatorBps = 10_000

// performanceFee computes the base-unit fee owed on one account. Interest is
// the account's current claim minus its cost basis; gains at or under one
// whole base unit (10^decimals) are ignored, as is a zero rate, so dust and
// rounding noise never trigger a charge.
func performanceFee(balanceValue, depositValue *big.Int, rateBps uint32, decimals uint8) *big.Int {
	if rateBps == 0 {
		return new(big.Int)
	}
	interest := new(big.Int).Sub(balanceValue, depositValue)
	threshold := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	if interest.Cmp(threshold) <= 0 {
		return new(big.Int)
	}
	fee := new(big.Int).Mul(interest, new(big.Int).SetUint64(uint64(rateBps)))
	return fee.Quo(fee, big.NewInt(feeDenominatorBps))
}
