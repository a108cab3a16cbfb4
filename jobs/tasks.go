package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/vaultgate-labs/vaultgate/internal/jobs"
	"github.com/vaultgate-labs/vaultgate/internal/vault"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFeeCollection charges one epoch's performance fees for a user batch.
	TaskFeeCollection = "fees:collect_epoch"
	// TaskLedgerIntegrity asserts share supply equals the sum of balances.
	TaskLedgerIntegrity = "ledger:integrity"
)

// FeeCollectionPayload identifies the epoch and users to charge.
type FeeCollectionPayload struct {
	Caller  string   `json:"caller"`
	EpochID uint64   `json:"epochId"`
	Users   []string `json:"users"`
}

// NewFeeCollectionTask constructs an Asynq task.
func NewFeeCollectionTask(payload FeeCollectionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFeeCollection, data), nil
}

// NewLedgerIntegrityTask constructs the integrity-check task for the scheduler.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewFeeCollectionHandler processes TaskFeeCollection tasks.
func NewFeeCollectionHandler(svc *vault.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("fee_collection")
		var payload FeeCollectionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return tracker.End(asynq.SkipRetry)
		}
		if !common.IsHexAddress(payload.Caller) {
			return tracker.End(asynq.SkipRetry)
		}
		users := make([]common.Address, 0, len(payload.Users))
		for _, u := range payload.Users {
			if !common.IsHexAddress(u) {
				return tracker.End(asynq.SkipRetry)
			}
			users = append(users, common.HexToAddress(u))
		}
		collected, err := svc.CollectEpochFees(ctx, common.HexToAddress(payload.Caller), payload.EpochID, users)
		if err != nil {
			logger.Error("fee collection failed",
				slog.Uint64("epoch", payload.EpochID),
				slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("fee collection done",
			slog.Uint64("epoch", payload.EpochID),
			slog.Int("users", len(users)),
			slog.String("feeValue", collected.String()))
		return tracker.End(nil)
	}
}

// NewLedgerIntegrityHandler processes TaskLedgerIntegrity tasks.
func NewLedgerIntegrityHandler(svc *vault.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("ledger_integrity")
		if err := svc.VerifySupply(ctx); err != nil {
			logger.Error("ledger integrity failed", slog.Any("error", err))
			return tracker.End(err)
		}
		return tracker.End(nil)
	}
}
