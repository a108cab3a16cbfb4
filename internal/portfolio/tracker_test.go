package portfolio

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func trackers(t *testing.T) map[string]Tracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return map[string]Tracker{
		"redis":  NewRedisTracker(client),
		"memory": NewMemoryTracker(),
	}
}

func TestTrackerFlagLifecycle(t *testing.T) {
	for name, tracker := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := crypto.Keccak256Hash([]byte("vaultgate.position.liquidity"))

			held, err := tracker.HoldsPosition(ctx, id)
			require.NoError(t, err)
			require.False(t, held)

			flipped, err := tracker.PositionOpened(ctx, id)
			require.NoError(t, err)
			require.True(t, flipped)

			// Re-opening an open position does not flip again.
			flipped, err = tracker.PositionOpened(ctx, id)
			require.NoError(t, err)
			require.False(t, flipped)

			held, err = tracker.HoldsPosition(ctx, id)
			require.NoError(t, err)
			require.True(t, held)

			flipped, err = tracker.PositionClosed(ctx, id)
			require.NoError(t, err)
			require.True(t, flipped)

			flipped, err = tracker.PositionClosed(ctx, id)
			require.NoError(t, err)
			require.False(t, flipped)

			held, err = tracker.HoldsPosition(ctx, id)
			require.NoError(t, err)
			require.False(t, held)
		})
	}
}

func TestTrackerPointersAreIndependent(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker()
	a := crypto.Keccak256Hash([]byte("a"))
	b := crypto.Keccak256Hash([]byte("b"))

	_, err := tracker.PositionOpened(ctx, a)
	require.NoError(t, err)

	held, err := tracker.HoldsPosition(ctx, b)
	require.NoError(t, err)
	require.False(t, held)
}
