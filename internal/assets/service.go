package assets

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// AuditPort records policy mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type Service struct {
	repo   Repository
	fund   common.Address
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, fund common.Address, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, fund: fund, audit: audit, logger: logger, now: time.Now}
}

// Get returns the policy for an asset. Absence means the asset is unknown to
// the vault, which callers must treat as fully disabled.
func (s *Service) Get(ctx context.Context, asset common.Address) (Policy, error) {
	return s.repo.Get(ctx, asset)
}

// SetPolicy upserts the policy for an asset.
func (s *Service) SetPolicy(ctx context.Context, caller common.Address, policy Policy) error {
	if caller != s.fund {
		return ErrOnlyFund
	}
	if policy.MinNominalDeposit == nil {
		policy.MinNominalDeposit = new(big.Int)
	}
	if policy.MinNominalWithdrawal == nil {
		policy.MinNominalWithdrawal = new(big.Int)
	}
	if policy.MinNominalDeposit.Sign() < 0 || policy.MinNominalWithdrawal.Sign() < 0 {
		return ErrInvalidPolicy
	}
	if err := s.repo.Upsert(ctx, policy); err != nil {
		return err
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    caller.Hex(),
			Action:   "assets.set_policy",
			Entity:   "asset_policy",
			EntityID: policy.Asset.Hex(),
			Meta: map[string]any{
				"enabled":      policy.Enabled,
				"canDeposit":   policy.CanDeposit,
				"canWithdraw":  policy.CanWithdraw,
				"permissioned": policy.Permissioned,
			},
			At: s.now(),
		})
		if err != nil {
			s.logger.Warn("audit record", slog.Any("error", err))
		}
	}
	return nil
}
