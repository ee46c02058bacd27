package models

import "time"

// ApprovalState tracks an AllocationBatch through the approval gate.
type ApprovalState string

const (
	AllocationAutoApproved    ApprovalState = "auto_approved"
	AllocationPendingApproval ApprovalState = "pending_approval"
	AllocationApproved        ApprovalState = "approved"
	AllocationDenied          ApprovalState = "denied"
)

// AllocationSplit is one fixed-percentage destination of a batch.
type AllocationSplit struct {
	Destination string
	Percent     float64
	Amount      float64
}

// AllocationBatch distributes realized profit by fixed percentage splits.
// Above the auto-approve ceiling it waits for an explicit operator signal.
type AllocationBatch struct {
	ID          string
	TotalAmount float64
	Splits      []AllocationSplit
	State       ApprovalState
	CreatedAt   time.Time
	ResolvedAt  time.Time
}

// Pending reports whether the batch still needs an operator decision.
func (b *AllocationBatch) Pending() bool {
	return b.State == AllocationPendingApproval
}
