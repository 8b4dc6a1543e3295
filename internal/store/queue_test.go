// Package store provides unit tests for the durable sales queue.
package store

import (
	"fmt"
	"testing"

	"github.com/vendly/vendly-pos/backend/internal/errors"
	"github.com/vendly/vendly-pos/backend/internal/models"
)

func testEntry(id string) models.QueueEntry {
	return models.QueueEntry{
		ID: id,
		Items: []models.SaleItem{
			{ProductID: 7, Quantity: 2, UnitPrice: 500, Discount: 0},
		},
	}
}

func newTestQueue(t *testing.T, maxSize int) (*Queue, *MemoryStorage) {
	t.Helper()

	storage := NewMemoryStorage()
	q, err := NewQueue(storage, maxSize, 3)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	return q, storage
}

// TestEnqueue tests that new entries get clean sync bookkeeping.
func TestEnqueue(t *testing.T) {
	q, _ := newTestQueue(t, 100)

	entry, err := q.Enqueue(testEntry("")) // id assigned by the queue

	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if entry.ID == "" {
		t.Error("Expected entry ID to be assigned")
	}

	if entry.CreatedAt == 0 {
		t.Error("Expected CreatedAt to be stamped")
	}

	if entry.Synced {
		t.Error("Expected Synced to be false")
	}

	if entry.RetryCount != 0 {
		t.Errorf("Expected RetryCount 0, got %d", entry.RetryCount)
	}

	if entry.SyncError != "" {
		t.Errorf("Expected no sync error, got %q", entry.SyncError)
	}
}

// TestEnqueueScrubsSyncState tests that caller-supplied sync bookkeeping is
// ignored; a fresh entry always starts clean.
func TestEnqueueScrubsSyncState(t *testing.T) {
	q, _ := newTestQueue(t, 100)

	dirty := testEntry("")
	dirty.Synced = true
	dirty.SyncError = "stale"
	dirty.RetryCount = 5

	entry, err := q.Enqueue(dirty)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if entry.Synced || entry.SyncError != "" || entry.RetryCount != 0 {
		t.Errorf("Expected clean sync state, got %+v", entry)
	}
}

// TestEnqueueCapacity tests the MAX_QUEUED_SALES ceiling (Scenario D).
func TestEnqueueCapacity(t *testing.T) {
	q, _ := newTestQueue(t, 1)

	if _, err := q.Enqueue(testEntry("s4")); err != nil {
		t.Fatalf("First enqueue failed: %v", err)
	}

	_, err := q.Enqueue(testEntry("s5"))
	if err == nil {
		t.Fatal("Expected error when queue is full")
	}

	if !errors.Is(err, errors.ErrCapacityExceeded) {
		t.Errorf("Expected CAPACITY_EXCEEDED, got %v", err)
	}

	// The full queue still holds exactly the first sale.
	if q.Size() != 1 {
		t.Errorf("Expected size 1, got %d", q.Size())
	}
}

// TestEnqueueDuplicateID tests that an id is never stored twice.
func TestEnqueueDuplicateID(t *testing.T) {
	q, _ := newTestQueue(t, 100)

	if _, err := q.Enqueue(testEntry("s1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	_, err := q.Enqueue(testEntry("s1"))
	if !errors.Is(err, errors.ErrDuplicateEntry) {
		t.Errorf("Expected DUPLICATE_ENTRY, got %v", err)
	}
}

// TestEnqueueNoItems tests that an empty sale is refused.
func TestEnqueueNoItems(t *testing.T) {
	q, _ := newTestQueue(t, 100)

	_, err := q.Enqueue(models.QueueEntry{ID: "s1"})
	if !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Expected VALIDATION_ERROR, got %v", err)
	}
}

// TestEnqueueRollbackOnSaveFailure tests that a failed persist leaves the
// in-memory queue unchanged.
func TestEnqueueRollbackOnSaveFailure(t *testing.T) {
	q, storage := newTestQueue(t, 100)

	storage.FailSave = fmt.Errorf("disk full")

	_, err := q.Enqueue(testEntry("s1"))
	if err == nil {
		t.Fatal("Expected enqueue to fail when storage fails")
	}

	if q.Size() != 0 {
		t.Errorf("Expected empty queue after rollback, got size %d", q.Size())
	}
}

// TestGetAllSnapshot tests insertion order and snapshot isolation.
func TestGetAllSnapshot(t *testing.T) {
	q, _ := newTestQueue(t, 100)

	q.Enqueue(testEntry("s1"))
	q.Enqueue(testEntry("s2"))
	q.Enqueue(testEntry("s3"))

	snapshot := q.GetAll()

	if len(snapshot) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(snapshot))
	}

	for i, want := range []string{"s1", "s2", "s3"} {
		if snapshot[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, snapshot[i].ID)
		}
	}

	// Mutating the queue must not change an already-taken snapshot.
	q.Remove("s2")
	if len(snapshot) != 3 {
		t.Error("Snapshot changed after Remove")
	}
}

// TestUpdate tests partial mutation of one entry.
func TestUpdate(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	q.Enqueue(testEntry("s1"))

	count := 2
	msg := "connection refused"
	if err := q.Update("s1", Patch{RetryCount: &count, SyncError: &msg}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	entry, ok := q.Get("s1")
	if !ok {
		t.Fatal("Entry missing after update")
	}

	if entry.RetryCount != 2 || entry.SyncError != "connection refused" {
		t.Errorf("Patch not applied: %+v", entry)
	}

	if entry.Synced {
		t.Error("Unpatched field changed")
	}
}

// TestUpdateNotFound tests that a missing id is reported, not ignored.
func TestUpdateNotFound(t *testing.T) {
	q, _ := newTestQueue(t, 100)

	count := 1
	err := q.Update("missing", Patch{RetryCount: &count})
	if !errors.Is(err, errors.ErrEntryNotFound) {
		t.Errorf("Expected ENTRY_NOT_FOUND, got %v", err)
	}
}

// TestRemoveIdempotent tests that removing a missing id is not an error.
func TestRemoveIdempotent(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	q.Enqueue(testEntry("s1"))

	if err := q.Remove("s1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if err := q.Remove("s1"); err != nil {
		t.Errorf("Second remove should be a no-op, got %v", err)
	}

	if err := q.Remove("never-existed"); err != nil {
		t.Errorf("Removing unknown id should be a no-op, got %v", err)
	}
}

// TestClear tests removing everything.
func TestClear(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	q.Enqueue(testEntry("s1"))
	q.Enqueue(testEntry("s2"))

	if err := q.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if q.Size() != 0 {
		t.Errorf("Expected size 0 after clear, got %d", q.Size())
	}
}

// TestClearFailed tests that only permanently rejected entries are dropped.
func TestClearFailed(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	q.Enqueue(testEntry("ok"))
	q.Enqueue(testEntry("rejected"))
	q.Enqueue(testEntry("retrying"))

	synced := true
	reason := "invalid_product"
	q.Update("rejected", Patch{Synced: &synced, SyncError: &reason})

	count := 1
	msg := "timeout"
	q.Update("retrying", Patch{RetryCount: &count, SyncError: &msg})

	removed, err := q.ClearFailed()
	if err != nil {
		t.Fatalf("ClearFailed failed: %v", err)
	}

	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}

	if _, ok := q.Get("rejected"); ok {
		t.Error("Rejected entry should be gone")
	}

	// Transient-failure entries are pending, not failed; they stay.
	if _, ok := q.Get("retrying"); !ok {
		t.Error("Retrying entry should remain")
	}
}

// TestPendingExcludesExhaustedAndRejected tests the automatic-cycle filter.
func TestPendingExcludesExhaustedAndRejected(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	q.Enqueue(testEntry("fresh"))
	q.Enqueue(testEntry("exhausted"))
	q.Enqueue(testEntry("rejected"))

	count := 3 // at the budget
	q.Update("exhausted", Patch{RetryCount: &count})

	synced := true
	reason := "bad payload"
	q.Update("rejected", Patch{Synced: &synced, SyncError: &reason})

	pending := q.Pending()

	if len(pending) != 1 || pending[0].ID != "fresh" {
		t.Errorf("Expected only the fresh entry pending, got %v", pending)
	}
}

// TestRetryFailed tests resetting exceeded-retries entries.
func TestRetryFailed(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	q.Enqueue(testEntry("exhausted"))
	q.Enqueue(testEntry("rejected"))

	count := 3
	msg := "timeout"
	q.Update("exhausted", Patch{RetryCount: &count, SyncError: &msg})

	synced := true
	reason := "invalid"
	q.Update("rejected", Patch{Synced: &synced, SyncError: &reason})

	reset, err := q.RetryFailed()
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}

	if reset != 1 {
		t.Errorf("Expected 1 reset, got %d", reset)
	}

	entry, _ := q.Get("exhausted")
	if entry.RetryCount != 0 || entry.SyncError != "" {
		t.Errorf("Expected clean retry state, got %+v", entry)
	}

	// Permanently rejected entries are not eligible for automatic retry.
	rejected, _ := q.Get("rejected")
	if !rejected.Synced || rejected.SyncError == "" {
		t.Error("Rejected entry should be untouched")
	}
}

// TestStats tests entry counts by derived state.
func TestStats(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	q.Enqueue(testEntry("pending"))
	q.Enqueue(testEntry("exhausted"))
	q.Enqueue(testEntry("rejected"))

	count := 3
	q.Update("exhausted", Patch{RetryCount: &count})

	synced := true
	reason := "invalid"
	q.Update("rejected", Patch{Synced: &synced, SyncError: &reason})

	stats := q.Stats()

	if stats["total"] != 3 {
		t.Errorf("Expected total 3, got %d", stats["total"])
	}
	if stats["pending"] != 1 {
		t.Errorf("Expected 1 pending, got %d", stats["pending"])
	}
	if stats["exceeded_retries"] != 1 {
		t.Errorf("Expected 1 exceeded_retries, got %d", stats["exceeded_retries"])
	}
	if stats["failed"] != 1 {
		t.Errorf("Expected 1 failed, got %d", stats["failed"])
	}
}

// TestQueueRecovery tests that a new Queue picks up persisted entries.
func TestQueueRecovery(t *testing.T) {
	storage := NewMemoryStorage()

	q1, err := NewQueue(storage, 100, 3)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	q1.Enqueue(testEntry("s1"))
	q1.Enqueue(testEntry("s2"))

	// Simulate a restart: a fresh queue over the same storage.
	q2, err := NewQueue(storage, 100, 3)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}

	if q2.Size() != 2 {
		t.Errorf("Expected 2 recovered entries, got %d", q2.Size())
	}

	entries := q2.GetAll()
	if entries[0].ID != "s1" || entries[1].ID != "s2" {
		t.Error("Recovered entries out of order")
	}
}
