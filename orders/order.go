// Package orders owns the order registry and lifecycle state machine. The
// registry is partitioned by provider (broker/account): order IDs are unique
// only within a partition and are never looked up without the partition key.
package orders

import "time"

// Status is an order lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusPartial   Status = "PARTIAL"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
	StatusReplaced  Status = "REPLACED"
	StatusOrphaned  Status = "ORPHANED"
)

// Terminal reports whether no further transitions are allowed. Orphaned
// orders are terminal for automation but stay visible for manual handling.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired, StatusReplaced, StatusOrphaned:
		return true
	}
	return false
}

// Active reports whether the order can still fill.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusSent, StatusPartial:
		return true
	}
	return false
}

// Order is a tracked order. Owned exclusively by the Controller; callers
// receive copies.
type Order struct {
	ID             string
	IntentID       string
	Symbol         string
	Action         string
	LotQty         int
	FilledQty      int
	Price          float64
	Status         Status
	Provider       string
	Book           string
	Classification string
	ReplaceCount   int
	CorrelationID  string

	// OrphanedProvider marks orders stranded on a decommissioned provider
	// partition.
	OrphanedProvider bool

	CreatedAt   time.Time
	SentAt      time.Time
	FilledAt    time.Time
	CancelledAt time.Time
}

// RemainingQty is the unfilled portion of the order.
func (o *Order) RemainingQty() int {
	return o.LotQty - o.FilledQty
}
