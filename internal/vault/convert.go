package vault

import "math/big"

// Rounding direction for share/value conversion. Every conversion rounds in
// the fund's favour: deposits mint the floor, withdrawals burn the ceiling.
type rounding uint8

const (
	roundDown rounding = iota
	roundUp
)

var one = big.NewInt(1)

// sharesForValue converts a base-unit value into shares at the current ratio
// (supply + 10^offset) / (tvl + 1). The virtual-share offset keeps the ratio
// defined on an empty vault and blunts first-depositor inflation.
func sharesForValue(value, supply, tvl *big.Int, offset uint8, round rounding) *big.Int {
	num := new(big.Int).Add(supply, virtualShares(offset))
	den := new(big.Int).Add(tvl, one)
	return mulDiv(value, num, den, round)
}

// valueForShares is the inverse conversion.
func valueForShares(shares, supply, tvl *big.Int, offset uint8, round rounding) *big.Int {
	num := new(big.Int).Add(tvl, one)
	den := new(big.Int).Add(supply, virtualShares(offset))
	return mulDiv(shares, num, den, round)
}

func virtualShares(offset uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(offset)), nil)
}

func mulDiv(a, b, den *big.Int, round rounding) *big.Int {
	q, r := new(big.Int).QuoRem(new(big.Int).Mul(a, b), den, new(big.Int))
	if round == roundUp && r.Sign() != 0 {
		q.Add(q, one)
	}
	return q
}
