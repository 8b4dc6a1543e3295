package sync

import (
	"github.com/vendly/vendly-pos/backend/internal/errors"
	"github.com/vendly/vendly-pos/backend/internal/logging"
	"github.com/vendly/vendly-pos/backend/internal/models"
	"github.com/vendly/vendly-pos/backend/internal/store"
)

// Policy decides what each per-entry outcome does to the queue:
//
//   - accepted/duplicate: the entry is removed (terminal success)
//   - rejected: marked permanently failed, visible until manual removal;
//     no retry budget is spent re-attempting doomed input
//   - server error: retry count incremented; at the budget the entry drops
//     out of automatic cycles but stays in the store
type Policy struct {
	queue *store.Queue
}

// NewPolicy creates a Policy over the queue.
func NewPolicy(queue *store.Queue) *Policy {
	return &Policy{queue: queue}
}

// Apply merges per-entry results into the store in the order received.
// Outcomes are independent; an accepted sibling is never rolled back because
// a later entry failed. The returned error reports a persistence failure,
// not a sync failure.
func (p *Policy) Apply(results []EntryResult) (accepted, rejected, errored int, err error) {
	for _, result := range results {
		var applyErr error

		switch {
		case result.Outcome.Accepted():
			applyErr = p.queue.Remove(result.ID)
			if applyErr == nil {
				accepted++
			}

		case result.Outcome.Status == OutcomeRejected:
			synced := true
			reason := result.Outcome.Reason
			applyErr = p.queue.Update(result.ID, store.Patch{
				Synced:    &synced,
				SyncError: &reason,
			})
			if applyErr == nil {
				rejected++
			}

		default: // transient
			entry, ok := p.queue.Get(result.ID)
			if !ok {
				// Removed manually mid-cycle; nothing to record.
				continue
			}
			count := entry.RetryCount + 1
			message := result.Outcome.Reason
			applyErr = p.queue.Update(result.ID, store.Patch{
				RetryCount: &count,
				SyncError:  &message,
			})
			if applyErr == nil {
				errored++
				if count >= p.queue.MaxRetries() {
					logging.Warn("Sale exceeded retry budget",
						map[string]interface{}{
							"sale_id":     result.ID,
							"retry_count": count,
						})
				}
			}
		}

		if applyErr != nil {
			if errors.Is(applyErr, errors.ErrEntryNotFound) {
				// Entry vanished between snapshot and merge (manual removal).
				logging.Debug("Skipping outcome for removed entry",
					map[string]interface{}{"sale_id": result.ID})
				continue
			}
			if err == nil {
				err = applyErr
			}
			logging.Error("Failed to record sync outcome", applyErr,
				map[string]interface{}{"sale_id": result.ID})
		}
	}

	return accepted, rejected, errored, err
}

// MarkTransient records a whole-cycle failure against every snapshot entry:
// retry count up, error message set, nothing removed.
func (p *Policy) MarkTransient(entries []models.QueueEntry, message string) int {
	marked := 0
	for _, entry := range entries {
		current, ok := p.queue.Get(entry.ID)
		if !ok {
			continue
		}
		count := current.RetryCount + 1
		msg := message
		if err := p.queue.Update(entry.ID, store.Patch{
			RetryCount: &count,
			SyncError:  &msg,
		}); err != nil {
			logging.Error("Failed to record transient failure", err,
				map[string]interface{}{"sale_id": entry.ID})
			continue
		}
		marked++
	}
	return marked
}
