package epochs

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// AuditPort records epoch administration.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

type Service struct {
	repo  Repository
	audit AuditPort
	fund  common.Address
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort, fund common.Address) *Service {
	return &Service{repo: repo, audit: audit, fund: fund, now: time.Now}
}

// Active returns the current (latest) epoch.
func (s *Service) Active(ctx context.Context) (Epoch, error) {
	return s.repo.Latest(ctx)
}

// Get returns an epoch by id.
func (s *Service) Get(ctx context.Context, id uint64) (Epoch, error) {
	return s.repo.Get(ctx, id)
}

// Start appends a new epoch ending at endsAt. The previous epoch must have
// ended; the very first epoch needs no predecessor.
func (s *Service) Start(ctx context.Context, caller common.Address, endsAt time.Time) (Epoch, error) {
	if caller != s.fund {
		return Epoch{}, ErrOnlyFund
	}
	now := s.now()
	if !endsAt.After(now) {
		return Epoch{}, ErrEndsInPast
	}
	latest, err := s.repo.Latest(ctx)
	switch {
	case err == nil:
		if !latest.Ended(now) {
			return Epoch{}, ErrPreviousNotEnded
		}
	case errors.Is(err, ErrNoActiveEpoch):
	default:
		return Epoch{}, err
	}
	epoch, err := s.repo.Insert(ctx, Epoch{EndsAt: endsAt})
	if err != nil {
		return Epoch{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    caller.Hex(),
			Action:   "epoch.start",
			Entity:   "epoch",
			EntityID: strconv.FormatUint(epoch.ID, 10),
			Meta:     map[string]any{"endsAt": epoch.EndsAt},
		})
	}
	return epoch, nil
}
