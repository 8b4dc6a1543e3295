package store

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vendly/vendly-pos/backend/internal/errors"
	"github.com/vendly/vendly-pos/backend/internal/models"
	"github.com/vendly/vendly-pos/backend/internal/uuid"
)

// Patch is a partial mutation of a queue entry. Nil fields are left unchanged.
// Only sync bookkeeping is patchable; items, customer and timestamps are
// immutable once enqueued.
type Patch struct {
	Synced     *bool
	SyncError  *string
	RetryCount *int
}

// Queue is the durable offline sales queue. Every successful mutation is
// persisted through Storage before it returns; a failed persist rolls the
// in-memory change back so memory and disk never disagree.
type Queue struct {
	mu         sync.Mutex
	storage    Storage
	entries    []models.QueueEntry
	maxSize    int
	maxRetries int
}

// NewQueue creates a Queue backed by storage, recovering any entries
// persisted by a previous run.
func NewQueue(storage Storage, maxSize, maxRetries int) (*Queue, error) {
	entries, err := storage.Load()
	if err != nil {
		return nil, err
	}

	q := &Queue{
		storage:    storage,
		entries:    entries,
		maxSize:    maxSize,
		maxRetries: maxRetries,
	}

	if len(entries) > 0 {
		log.Printf("[Queue] Recovered %d queued sales from storage", len(entries))
	}

	return q, nil
}

// MaxRetries returns the configured transient-failure retry budget.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Enqueue records a completed sale that could not be submitted. The entry is
// stored with Synced=false, RetryCount=0 and no sync error. An empty ID gets
// a generated UUID; a caller-supplied ID must be unused.
// Returns CAPACITY_EXCEEDED when the queue is full — the caller must surface
// this to the operator, a completed sale is never dropped silently.
func (q *Queue) Enqueue(entry models.QueueEntry) (models.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		return models.QueueEntry{}, errors.New(errors.ErrCapacityExceeded,
			fmt.Sprintf("queue is full (max size: %d)", q.maxSize))
	}

	if len(entry.Items) == 0 {
		return models.QueueEntry{}, errors.New(errors.ErrValidation, "sale has no items")
	}

	if entry.ID == "" {
		entry.ID = uuid.New()
	} else if q.indexOf(entry.ID) >= 0 {
		return models.QueueEntry{}, errors.New(errors.ErrDuplicateEntry,
			fmt.Sprintf("entry %s already queued", entry.ID))
	}

	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}
	entry.Synced = false
	entry.SyncError = ""
	entry.RetryCount = 0

	q.entries = append(q.entries, entry)

	if err := q.persist(); err != nil {
		q.entries = q.entries[:len(q.entries)-1]
		return models.QueueEntry{}, err
	}

	log.Printf("[Queue] Enqueued sale %s (%d items, queued: %d)",
		entry.ID, len(entry.Items), len(q.entries))

	return entry, nil
}

// GetAll returns a point-in-time snapshot of all entries in insertion order.
func (q *Queue) GetAll() []models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Get returns one entry by id.
func (q *Queue) Get(id string) (models.QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return models.QueueEntry{}, false
	}
	return q.entries[i], true
}

// Pending returns the entries eligible for an automatic sync cycle:
// not yet synced and still inside the retry budget.
func (q *Queue) Pending() []models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var pending []models.QueueEntry
	for _, entry := range q.entries {
		if entry.Pending(q.maxRetries) {
			pending = append(pending, entry)
		}
	}
	return pending
}

// Update applies a partial mutation to exactly one entry.
// A missing id is reported as ENTRY_NOT_FOUND, never silently ignored.
func (q *Queue) Update(id string, patch Patch) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return errors.New(errors.ErrEntryNotFound,
			fmt.Sprintf("entry %s not found", id))
	}

	prev := q.entries[i]
	if patch.Synced != nil {
		q.entries[i].Synced = *patch.Synced
	}
	if patch.SyncError != nil {
		q.entries[i].SyncError = *patch.SyncError
	}
	if patch.RetryCount != nil {
		q.entries[i].RetryCount = *patch.RetryCount
	}

	if err := q.persist(); err != nil {
		q.entries[i] = prev
		return err
	}

	return nil
}

// Remove deletes one entry. Removing a missing id is not an error.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return nil
	}

	prev := make([]models.QueueEntry, len(q.entries))
	copy(prev, q.entries)

	q.entries = append(q.entries[:i], q.entries[i+1:]...)

	if err := q.persist(); err != nil {
		q.entries = prev
		return err
	}

	log.Printf("[Queue] Removed sale %s (queued: %d)", id, len(q.entries))

	return nil
}

// Clear deletes all entries.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev := q.entries
	q.entries = nil

	if err := q.persist(); err != nil {
		q.entries = prev
		return err
	}

	log.Printf("[Queue] Queue cleared (%d entries removed)", len(prev))

	return nil
}

// ClearWhere deletes all entries matching the predicate and returns how many
// were removed.
func (q *Queue) ClearWhere(predicate func(models.QueueEntry) bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev := q.entries
	kept := make([]models.QueueEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		if !predicate(entry) {
			kept = append(kept, entry)
		}
	}

	removed := len(prev) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	q.entries = kept
	if err := q.persist(); err != nil {
		q.entries = prev
		return 0, err
	}

	log.Printf("[Queue] Cleared %d entries (queued: %d)", removed, len(kept))

	return removed, nil
}

// ClearFailed removes permanently rejected entries: the server refused them
// and they will never be accepted as-is.
func (q *Queue) ClearFailed() (int, error) {
	return q.ClearWhere(func(e models.QueueEntry) bool {
		return e.Synced && e.SyncError != ""
	})
}

// RetryFailed resets exceeded-retries entries so the next automatic cycle
// picks them up again. Permanently rejected entries are left untouched.
func (q *Queue) RetryFailed() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev := make([]models.QueueEntry, len(q.entries))
	copy(prev, q.entries)

	count := 0
	for i := range q.entries {
		if q.entries[i].State(q.maxRetries) == models.StateExceededRetries {
			q.entries[i].RetryCount = 0
			q.entries[i].SyncError = ""
			count++
		}
	}

	if count == 0 {
		return 0, nil
	}

	if err := q.persist(); err != nil {
		q.entries = prev
		return 0, err
	}

	log.Printf("[Queue] Reset %d exceeded-retries entries for retry", count)

	return count, nil
}

// Size returns the number of queued entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Stats returns entry counts by derived state.
func (q *Queue) Stats() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := map[string]int{
		"total":            len(q.entries),
		"pending":          0,
		"exceeded_retries": 0,
		"failed":           0,
	}

	for _, entry := range q.entries {
		stats[string(entry.State(q.maxRetries))]++
	}

	return stats
}

// indexOf returns the position of id, or -1. Caller holds the lock.
func (q *Queue) indexOf(id string) int {
	for i := range q.entries {
		if q.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// persist writes the full entry set through storage. Caller holds the lock.
func (q *Queue) persist() error {
	return q.storage.Save(q.entries)
}
