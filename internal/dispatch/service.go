package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vaultgate-labs/vaultgate/internal/hooks"
	"github.com/vaultgate-labs/vaultgate/internal/observability"
	"github.com/vaultgate-labs/vaultgate/internal/registry"
	"github.com/vaultgate-labs/vaultgate/internal/safe"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// RegistryPort is the binding lookup the dispatcher depends on.
type RegistryPort interface {
	GetHooks(ctx context.Context, key registry.BindingKey) (registry.HookBinding, error)
}

// Locker provides the mutual-exclusion primitive around Execute.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// AuditPort records executions and admin changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// GasContext carries the submitting transaction's gas pricing, used for the
// priority-fee cap and the refund.
type GasContext struct {
	GasPrice *uint256.Int
	BaseFee  *uint256.Int
}

// Service is the transaction dispatcher.
type Service struct {
	repo     Repository
	registry RegistryPort
	resolver *hooks.Resolver
	executor safe.Executor
	locker   Locker
	audit    AuditPort
	metrics  *observability.Metrics
	logger   *slog.Logger
	fund     common.Address
	lockTTL  time.Duration
	now      func() time.Time
}

// NewService wires the dispatcher.
func NewService(repo Repository, reg RegistryPort, resolver *hooks.Resolver, executor safe.Executor, locker Locker, audit AuditPort, metrics *observability.Metrics, logger *slog.Logger, fund common.Address) *Service {
	return &Service{
		repo:     repo,
		registry: reg,
		resolver: resolver,
		executor: executor,
		locker:   locker,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		fund:     fund,
		lockTTL:  2 * time.Minute,
		now:      time.Now,
	}
}

// Execute runs a batch of operator calls. Either every call (and the gas
// refund) succeeds, or the execution environment is rolled back to the
// pre-batch snapshot and the error is surfaced; there is no partial
// application.
func (s *Service) Execute(ctx context.Context, operator common.Address, batch []safe.Call, gas GasContext) ([]safe.Result, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Paused {
		return nil, ErrPaused
	}
	if cfg.MaxGasPriorityBps > 0 && PriorityFeeBps(gas.GasPrice, gas.BaseFee) > cfg.MaxGasPriorityBps {
		return nil, ErrGasPriorityTooHigh
	}

	release, err := s.locker.Acquire(ctx, shared.DispatchLockKey("fund"), s.lockTTL)
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			return nil, ErrExecutionLocked
		}
		return nil, err
	}
	defer release()

	snapshot, err := s.executor.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	results, err := s.runBatch(ctx, operator, batch, gas)
	if err != nil {
		if rerr := s.executor.Revert(ctx, snapshot); rerr != nil {
			s.logger.Error("snapshot revert", slog.Any("error", rerr))
		}
		s.metrics.BatchExecuted("rejected")
		return nil, err
	}

	s.metrics.BatchExecuted("executed")
	s.record(ctx, operator, len(batch))
	return results, nil
}

func (s *Service) runBatch(ctx context.Context, operator common.Address, batch []safe.Call, gas GasContext) ([]safe.Result, error) {
	results := make([]safe.Result, 0, len(batch))
	var gasUsed uint64
	for _, call := range batch {
		binding, err := s.registry.GetHooks(ctx, registry.BindingKey{
			Operator:  operator,
			Target:    call.Target,
			Operation: call.Operation,
			Selector:  call.Selector,
		})
		if err != nil {
			return nil, err
		}
		if !binding.Defined {
			return nil, ErrHookNotDefined
		}

		before, err := s.resolver.Resolve(binding.Before)
		if err != nil {
			return nil, err
		}
		if err := before.CheckBefore(ctx, call); err != nil {
			s.metrics.HookDenied("before")
			return nil, err
		}

		result, err := s.executor.Exec(ctx, call)
		if err != nil {
			return nil, err
		}

		if binding.HasAfter() {
			after, err := s.resolver.Resolve(binding.After)
			if err != nil {
				return nil, err
			}
			if err := after.CheckAfter(ctx, call, result.Return); err != nil {
				s.metrics.HookDenied("after")
				return nil, err
			}
		}
		gasUsed += result.GasUsed
		results = append(results, result)
	}

	if err := s.refundGas(ctx, operator, gasUsed, gas); err != nil {
		return nil, err
	}
	return results, nil
}

// refundGas pays the caller's consumed gas back from the fund at the
// transaction's gas price. A failed refund is fatal to the whole batch.
func (s *Service) refundGas(ctx context.Context, operator common.Address, gasUsed uint64, gas GasContext) error {
	if gasUsed == 0 || gas.GasPrice == nil || gas.GasPrice.IsZero() {
		return nil
	}
	refund := new(big.Int).Mul(gas.GasPrice.ToBig(), new(big.Int).SetUint64(gasUsed))
	if _, err := s.executor.Exec(ctx, safe.TransferCall(operator, refund)); err != nil {
		return ErrGasRefundFailed
	}
	return nil
}

// Pause stops subsequent batches.
func (s *Service) Pause(ctx context.Context, caller common.Address) error {
	return s.setConfig(ctx, caller, func(cfg *Config) { cfg.Paused = true }, "dispatch.pause")
}

// Unpause re-enables execution.
func (s *Service) Unpause(ctx context.Context, caller common.Address) error {
	return s.setConfig(ctx, caller, func(cfg *Config) { cfg.Paused = false }, "dispatch.unpause")
}

// SetMaxGasPriorityBps updates the priority-fee cap.
func (s *Service) SetMaxGasPriorityBps(ctx context.Context, caller common.Address, bps uint32) error {
	return s.setConfig(ctx, caller, func(cfg *Config) { cfg.MaxGasPriorityBps = bps }, "dispatch.set_gas_cap")
}

// GetConfig reads the current dispatcher config.
func (s *Service) GetConfig(ctx context.Context) (Config, error) {
	return s.repo.GetConfig(ctx)
}

func (s *Service) setConfig(ctx context.Context, caller common.Address, mutate func(*Config), action string) error {
	if caller != s.fund {
		return ErrOnlyFund
	}
	cfg, err := s.repo.GetConfig(ctx)
	if err != nil {
		return err
	}
	mutate(&cfg)
	if err := s.repo.SetConfig(ctx, cfg); err != nil {
		return err
	}
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    caller.Hex(),
			Action:   action,
			Entity:   "dispatch_config",
			EntityID: "1",
			Meta:     map[string]any{"paused": cfg.Paused, "max_gas_priority_bps": cfg.MaxGasPriorityBps},
			At:       s.now(),
		})
		if err != nil {
			s.logger.Warn("audit record", slog.Any("error", err))
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, operator common.Address, size int) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    operator.Hex(),
		Action:   "dispatch.execute",
		Entity:   "batch",
		EntityID: operator.Hex(),
		Meta:     map[string]any{"transactions": size},
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
