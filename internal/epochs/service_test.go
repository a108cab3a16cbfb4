package epochs

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var fund = common.HexToAddress("0x1000000000000000000000000000000000000001")

type memRepository struct {
	epochs []Epoch
}

func (r *memRepository) Latest(context.Context) (Epoch, error) {
	if len(r.epochs) == 0 {
		return Epoch{}, ErrNoActiveEpoch
	}
	return r.epochs[len(r.epochs)-1], nil
}

func (r *memRepository) Get(_ context.Context, id uint64) (Epoch, error) {
	for _, epoch := range r.epochs {
		if epoch.ID == id {
			return epoch, nil
		}
	}
	return Epoch{}, ErrNoActiveEpoch
}

func (r *memRepository) Insert(_ context.Context, epoch Epoch) (Epoch, error) {
	epoch.ID = uint64(len(r.epochs) + 1)
	epoch.CreatedAt = time.Now()
	r.epochs = append(r.epochs, epoch)
	return epoch, nil
}

func TestStartFirstEpoch(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&memRepository{}, nil, fund)

	_, err := svc.Active(ctx)
	require.ErrorIs(t, err, ErrNoActiveEpoch)

	epoch, err := svc.Start(ctx, fund, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(1), epoch.ID)

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, epoch.ID, active.ID)
}

func TestStartFundOnly(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&memRepository{}, nil, fund)
	_, err := svc.Start(ctx, common.HexToAddress("0x02"), time.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrOnlyFund)
}

func TestStartRejectsPastEnd(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&memRepository{}, nil, fund)
	_, err := svc.Start(ctx, fund, time.Now().Add(-time.Minute))
	require.ErrorIs(t, err, ErrEndsInPast)
}

func TestStartRequiresPreviousEnded(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&memRepository{}, nil, fund)

	_, err := svc.Start(ctx, fund, time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = svc.Start(ctx, fund, time.Now().Add(2*time.Hour))
	require.ErrorIs(t, err, ErrPreviousNotEnded)
}

func TestStartAfterPreviousEnded(t *testing.T) {
	ctx := context.Background()
	repo := &memRepository{}
	svc := NewService(repo, nil, fund)

	_, err := svc.Start(ctx, fund, time.Now().Add(time.Hour))
	require.NoError(t, err)
	repo.epochs[0].EndsAt = time.Now().Add(-time.Minute)

	epoch, err := svc.Start(ctx, fund, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(2), epoch.ID)
}

func TestEpochEnded(t *testing.T) {
	now := time.Now()
	epoch := Epoch{EndsAt: now}
	require.True(t, epoch.Ended(now))
	require.True(t, epoch.Ended(now.Add(time.Second)))
	require.False(t, epoch.Ended(now.Add(-time.Second)))
}
