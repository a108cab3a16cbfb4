package vault

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPerformanceFee(t *testing.T) {
	// 2000 bps of 100 units of interest above a 6-decimal threshold.
	balance, _ := new(big.Int).SetString("200000000", 10)
	deposit, _ := new(big.Int).SetString("100000000", 10)
	fee := performanceFee(balance, deposit, 2000, 6)
	require.Zero(t, fee.Cmp(big.NewInt(20_000_000)))
}

func TestPerformanceFeeZeroRate(t *testing.T) {
	fee := performanceFee(big.NewInt(200), big.NewInt(100), 0, 0)
	require.Zero(t, fee.Sign())
}

func TestPerformanceFeeIgnoresDust(t *testing.T) {
	// Interest of exactly one whole unit is still below the line.
	fee := performanceFee(big.NewInt(2_000_000), big.NewInt(1_000_000), 2000, 6)
	require.Zero(t, fee.Sign())

	fee = performanceFee(big.NewInt(2_000_001), big.NewInt(1_000_000), 2000, 6)
	require.Positive(t, fee.Sign())
}

func TestPerformanceFeeZeroOnLoss(t *testing.T) {
	fee := performanceFee(big.NewInt(50), big.NewInt(100), 2000, 0)
	require.Zero(t, fee.Sign())
}
