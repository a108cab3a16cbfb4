package hooks

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/vaultgate-labs/vaultgate/internal/portfolio"
	"github.com/vaultgate-labs/vaultgate/internal/safe"
)

var pool = common.HexToAddress("0x7000000000000000000000000000000000000007")

type fakeCollateralReader struct {
	total *big.Int
}

func (r *fakeCollateralReader) TotalCollateral(context.Context, common.Address) (*big.Int, error) {
	return r.total, nil
}

func lendingFixture(t *testing.T, collateral *fakeCollateralReader) (*LendingValidator, *MemoryWhitelist, *portfolio.MemoryTracker) {
	t.Helper()
	whitelist := NewMemoryWhitelist()
	require.NoError(t, whitelist.Enable(context.Background(), "lending", tokenA))
	tracker := portfolio.NewMemoryTracker()
	return NewLendingValidator(pool, fund, whitelist, collateral, tracker), whitelist, tracker
}

func lendingCall(t *testing.T, selector safe.Selector, args ...any) safe.Call {
	t.Helper()
	var data []byte
	var err error
	switch selector {
	case selSupply:
		data, err = supplyLayout.Pack(args...)
	case selWithdraw:
		data, err = withdrawLayout.Pack(args...)
	case selBorrow:
		data, err = borrowLayout.Pack(args...)
	case selRepay:
		data, err = repayLayout.Pack(args...)
	}
	require.NoError(t, err)
	return safe.Call{Target: pool, Operation: safe.OperationCall, Selector: selector, Args: data}
}

func TestLendingEntryRequiresWhitelistAndFund(t *testing.T) {
	ctx := context.Background()
	v, whitelist, _ := lendingFixture(t, &fakeCollateralReader{total: big.NewInt(1)})

	require.NoError(t, v.CheckBefore(ctx, lendingCall(t, selSupply, tokenA, big.NewInt(100), fund, uint16(0))))
	require.NoError(t, v.CheckBefore(ctx, lendingCall(t, selBorrow, tokenA, big.NewInt(50), big.NewInt(2), uint16(0), fund)))

	err := v.CheckBefore(ctx, lendingCall(t, selSupply, tokenA, big.NewInt(100), outside, uint16(0)))
	require.ErrorIs(t, err, ErrOnlyFund)

	require.NoError(t, whitelist.Disable(ctx, "lending", tokenA))
	err = v.CheckBefore(ctx, lendingCall(t, selSupply, tokenA, big.NewInt(100), fund, uint16(0)))
	require.ErrorIs(t, err, ErrOnlyWhitelistedTokens)
}

func TestLendingWindDownSurvivesDisabledAssets(t *testing.T) {
	ctx := context.Background()
	v, whitelist, _ := lendingFixture(t, &fakeCollateralReader{total: big.NewInt(1)})
	require.NoError(t, whitelist.Disable(ctx, "lending", tokenA))

	require.NoError(t, v.CheckBefore(ctx, lendingCall(t, selWithdraw, tokenA, big.NewInt(100), fund)))
	require.NoError(t, v.CheckBefore(ctx, lendingCall(t, selRepay, tokenA, big.NewInt(100), big.NewInt(2), fund)))

	err := v.CheckBefore(ctx, lendingCall(t, selWithdraw, tokenA, big.NewInt(100), outside))
	require.ErrorIs(t, err, ErrOnlyFund)
}

func TestLendingAfterHookClosesOnZeroCollateral(t *testing.T) {
	ctx := context.Background()
	collateral := &fakeCollateralReader{total: big.NewInt(5)}
	v, _, tracker := lendingFixture(t, collateral)

	require.NoError(t, v.CheckAfter(ctx, lendingCall(t, selSupply, tokenA, big.NewInt(100), fund, uint16(0)), nil))
	held, err := tracker.HoldsPosition(ctx, v.pointer)
	require.NoError(t, err)
	require.True(t, held)

	// Still collateral left: pointer stays open.
	require.NoError(t, v.CheckAfter(ctx, lendingCall(t, selRepay, tokenA, big.NewInt(100), big.NewInt(2), fund), nil))
	held, err = tracker.HoldsPosition(ctx, v.pointer)
	require.NoError(t, err)
	require.True(t, held)

	collateral.total = big.NewInt(0)
	require.NoError(t, v.CheckAfter(ctx, lendingCall(t, selWithdraw, tokenA, big.NewInt(100), fund), nil))
	held, err = tracker.HoldsPosition(ctx, v.pointer)
	require.NoError(t, err)
	require.False(t, held)
}
