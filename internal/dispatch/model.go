// Package dispatch executes operator-submitted call batches behind the hook
// registry: every call is pre-validated, executed as the fund, and
// post-validated, with all-or-nothing semantics across the batch.
package dispatch

import (
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// Config is the dispatcher's admin-settable state. Changes take effect for
// subsequent batches, never retroactively for one in flight.
type Config struct {
	Paused bool
	// MaxGasPriorityBps caps the priority-fee fraction of the gas price, in
	// basis points. Zero means no cap.
	MaxGasPriorityBps uint32
}

var (
	// ErrEmptyBatch rejects batches with no transactions.
	ErrEmptyBatch = shared.Intent("dispatch: empty batch")
	// ErrPaused rejects execution while the dispatcher is paused.
	ErrPaused = shared.State("dispatch: paused")
	// ErrGasPriorityTooHigh rejects batches paying a priority-fee fraction
	// above the configured cap; checked once for the whole batch.
	ErrGasPriorityTooHigh = shared.Policy("dispatch: gas priority fee above cap")
	// ErrHookNotDefined rejects calls with no registered hook binding.
	ErrHookNotDefined = shared.Policy("dispatch: hook not defined")
	// ErrExecutionLocked rejects re-entrant or concurrent Execute calls.
	ErrExecutionLocked = shared.State("dispatch: execution already in progress")
	// ErrGasRefundFailed aborts the whole batch when the refund transfer
	// fails; refund correctness is part of the atomic contract.
	ErrGasRefundFailed = shared.Integrity("dispatch: gas refund failed")
	// ErrOnlyFund guards the admin operations.
	ErrOnlyFund = shared.Authorization("dispatch: only the fund may administer the dispatcher")
	// ErrExecutionFailed wraps an underlying call failure with no reason.
	ErrExecutionFailed = shared.State("dispatch: transaction failed without reason")
)
