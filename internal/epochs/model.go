package epochs

import (
	"time"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// Epoch is one performance-fee window. Epochs are append-only: once written
// the end timestamp never changes, and a new epoch may only start after the
// previous one has ended.
type Epoch struct {
	ID        uint64
	EndsAt    time.Time
	CreatedAt time.Time
}

// Ended reports whether the epoch window has closed at the given instant.
func (e Epoch) Ended(at time.Time) bool {
	return !at.Before(e.EndsAt)
}

var (
	ErrNoActiveEpoch    = shared.State("epochs: no epoch has been started")
	ErrPreviousNotEnded = shared.State("epochs: previous epoch has not ended")
	ErrEndsInPast       = shared.Intent("epochs: end timestamp must be in the future")
	ErrOnlyFund         = shared.Authorization("epochs: only the fund may start an epoch")
)
