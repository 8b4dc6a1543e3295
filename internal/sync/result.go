// Package sync reconciles queued offline sales with the backend.
package sync

import "time"

// OutcomeStatus is the server's disposition for one submitted sale.
type OutcomeStatus string

const (
	// OutcomeAccepted means the server recorded the sale.
	OutcomeAccepted OutcomeStatus = "accepted"
	// OutcomeDuplicate means the server had already recorded this id. This is
	// the expected result of a retry whose prior acknowledgment was lost and
	// is treated exactly like OutcomeAccepted.
	OutcomeDuplicate OutcomeStatus = "duplicate"
	// OutcomeRejected means the payload itself is invalid and will never be
	// accepted as-is. Not retried automatically.
	OutcomeRejected OutcomeStatus = "rejected"
	// OutcomeServerError covers 5xx, network failures and timeouts.
	// Recoverable by retry.
	OutcomeServerError OutcomeStatus = "server_error"
)

// Outcome is the classified result for one entry.
type Outcome struct {
	Status OutcomeStatus
	Reason string
}

// Accepted reports whether the entry can be removed from the queue.
func (o Outcome) Accepted() bool {
	return o.Status == OutcomeAccepted || o.Status == OutcomeDuplicate
}

// Transient reports whether the failure is recoverable by retry.
func (o Outcome) Transient() bool {
	return o.Status == OutcomeServerError
}

// EntryResult pairs an entry id with its outcome. Results are applied to the
// store in the order they appear.
type EntryResult struct {
	ID      string
	Outcome Outcome
}

// SyncResult summarizes one sync cycle.
type SyncResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Total     int
	Accepted  int
	Rejected  int
	Errored   int
	Error     string
}

// Progress reports whether the cycle terminally disposed of at least one
// entry (accepted or permanently rejected). Transient failures only bump
// retry counters and do not count as progress.
func (r *SyncResult) Progress() bool {
	return r.Accepted > 0 || r.Rejected > 0
}
