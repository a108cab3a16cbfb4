package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// AuditPort records admin mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service enforces fund-only mutation over the binding store.
type Service struct {
	repo   Repository
	fund   common.Address
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the registry service.
func NewService(repo Repository, fund common.Address, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, fund: fund, audit: audit, logger: logger, now: time.Now}
}

// GetHooks looks up the binding for key. Callers must treat Defined=false as
// deny by default.
func (s *Service) GetHooks(ctx context.Context, key BindingKey) (HookBinding, error) {
	return s.repo.Get(ctx, key)
}

// SetHooks registers a binding. Re-registering an existing key fails with
// ErrAlreadyDefined so policy is never silently overwritten.
func (s *Service) SetHooks(ctx context.Context, caller common.Address, binding HookBinding) error {
	if caller != s.fund {
		return ErrOnlyFund
	}
	if err := binding.Validate(); err != nil {
		return err
	}
	binding.Defined = true
	if err := s.repo.Insert(ctx, binding); err != nil {
		return err
	}
	s.record(ctx, caller, "registry.set_hooks", binding)
	return nil
}

// UnsetHooks removes a binding.
func (s *Service) UnsetHooks(ctx context.Context, caller common.Address, key BindingKey) error {
	if caller != s.fund {
		return ErrOnlyFund
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return err
	}
	s.record(ctx, caller, "registry.unset_hooks", HookBinding{BindingKey: key})
	return nil
}

func (s *Service) record(ctx context.Context, actor common.Address, action string, binding HookBinding) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor.Hex(),
		Action:   action,
		Entity:   "hook_binding",
		EntityID: binding.Target.Hex() + ":" + binding.Selector.Hex(),
		Meta: map[string]any{
			"operator":  binding.Operator.Hex(),
			"operation": uint8(binding.Operation),
			"before":    binding.Before.Hex(),
			"after":     binding.After.Hex(),
		},
		At: s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
