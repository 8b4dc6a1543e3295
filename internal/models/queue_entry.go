// Package models provides data model definitions for the Vendly POS backend.
package models

// SaleItem is one line of a queued sale. Prices are in minor currency units.
type SaleItem struct {
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
	Discount  int64 `db:"discount" json:"discount"`
}

// QueueEntry represents one locally recorded sale that the server has not yet
// confirmed. The ID doubles as the idempotency key: the server treats a
// repeated ID as "already applied" rather than creating a duplicate sale.
type QueueEntry struct {
	ID         string     `db:"id" json:"id"`
	Items      []SaleItem `db:"items" json:"items"`
	CustomerID string     `db:"customer_id" json:"customer_id,omitempty"`
	CreatedAt  int64      `db:"created_at" json:"created_at"`
	Synced     bool       `db:"synced" json:"synced"`
	SyncError  string     `db:"sync_error" json:"sync_error,omitempty"`
	RetryCount int        `db:"retry_count" json:"retry_count"`
}

// EntryState is the operator-facing classification of a queue entry. It is
// derived from stored fields only; the UI layer must not invent extra state.
type EntryState string

const (
	// StatePending entries will be picked up by automatic sync cycles.
	StatePending EntryState = "pending"
	// StateExceededRetries entries burned their transient-failure budget and
	// need manual attention (retry reset or removal).
	StateExceededRetries EntryState = "exceeded_retries"
	// StateFailed entries were permanently rejected by the server and are
	// never retried automatically.
	StateFailed EntryState = "failed"
)

// State classifies the entry against the configured retry budget.
// A permanently rejected entry is marked Synced=true with SyncError set, which
// keeps it out of the pending filter without extra bookkeeping. Accepted
// entries are removed from the queue outright, so a persisted Synced entry
// always carries a rejection reason.
func (e *QueueEntry) State(maxRetries int) EntryState {
	if e.Synced && e.SyncError != "" {
		return StateFailed
	}
	if e.RetryCount >= maxRetries {
		return StateExceededRetries
	}
	return StatePending
}

// Pending reports whether the entry is eligible for an automatic sync cycle.
func (e *QueueEntry) Pending(maxRetries int) bool {
	return e.State(maxRetries) == StatePending
}

// Total returns the sale total in minor currency units.
func (e *QueueEntry) Total() int64 {
	var total int64
	for _, item := range e.Items {
		total += item.UnitPrice*int64(item.Quantity) - item.Discount
	}
	return total
}
