package event

import (
	"time"

	"ledger/internal/domain"
)

type AdjustmentStatus string

const (
	AdjustmentApplied  AdjustmentStatus = "APPLIED"
	AdjustmentRejected AdjustmentStatus = "REJECTED"
	// AdjustmentDuplicate answers a command id that was applied before. The
	// balance is the current one.
	AdjustmentDuplicate AdjustmentStatus = "DUPLICATE"
)

// AdjustmentCommand asks the ledger to apply a signed amount to an account.
type AdjustmentCommand struct {
	CommandID string         `json:"commandId,omitempty"`
	AccountID string         `json:"accountId"`
	Amount    *domain.Amount `json:"amount"`
}

// AdjustmentResult reports the outcome of one AdjustmentCommand. Balance is
// set only when the adjustment was applied; Error only when it was rejected.
type AdjustmentResult struct {
	CommandID string           `json:"commandId"`
	AccountID string           `json:"accountId"`
	Status    AdjustmentStatus `json:"status"`
	Balance   *domain.Amount   `json:"balance,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
