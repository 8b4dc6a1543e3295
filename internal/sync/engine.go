package sync

import (
	"context"
	"time"

	"github.com/vendly/vendly-pos/backend/internal/errors"
	"github.com/vendly/vendly-pos/backend/internal/logging"
	"github.com/vendly/vendly-pos/backend/internal/models"
	"github.com/vendly/vendly-pos/backend/internal/store"
)

// EventHandler receives sync lifecycle notifications. The desktop shell wires
// this to the WebSocket hub so toasts can render queue-derived state.
type EventHandler interface {
	OnSyncStarted(total int)
	OnSyncCompleted(result *SyncResult)
	OnSyncFailed(code string, message string)
	OnQueueUpdated(stats map[string]int)
}

// EngineInterface defines the engine operations the scheduler depends on.
// It exists so scheduler tests can run against a fake engine.
type EngineInterface interface {
	// Sync runs one sync cycle. The returned error is non-nil only for
	// whole-cycle failures (endpoint unreachable, cycle timeout); per-entry
	// rejections are recorded on the entries instead.
	Sync(ctx context.Context) (*SyncResult, error)
}

// Engine runs one sync cycle: snapshot the pending entries, submit them,
// merge the per-entry outcomes back into the queue.
type Engine struct {
	queue   *store.Queue
	client  *Client
	policy  *Policy
	timeout time.Duration
	events  EventHandler
}

// NewEngine creates an Engine. timeout is the whole-cycle network budget.
func NewEngine(queue *store.Queue, client *Client, timeout time.Duration) *Engine {
	return &Engine{
		queue:   queue,
		client:  client,
		policy:  NewPolicy(queue),
		timeout: timeout,
	}
}

// SetEventHandler sets the handler for sync notifications.
func (e *Engine) SetEventHandler(handler EventHandler) {
	e.events = handler
}

// Sync performs one cycle against the batch endpoint, falling back to
// single-item submission when the batch route is unavailable.
//
// Entries enqueued after the snapshot is taken are left for the next cycle;
// the snapshot is never mutated mid-flight.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	snapshot := e.queue.Pending()

	result := &SyncResult{
		StartTime: time.Now(),
		Total:     len(snapshot),
	}

	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	if len(snapshot) == 0 {
		return result, nil
	}

	if e.events != nil {
		e.events.OnSyncStarted(len(snapshot))
	}

	syncCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	results, err := e.client.SyncBatch(syncCtx, snapshot)
	if err != nil && errors.Is(err, errors.ErrBatchUnsupported) {
		logging.Warn("Batch endpoint unavailable, falling back to single-item sync",
			map[string]interface{}{"entries": len(snapshot)})
		results, err = e.syncOneByOne(syncCtx, snapshot)
	}

	if err != nil {
		// Whole-cycle failure: every snapshot entry without a recorded
		// outcome takes a transient hit, none are accepted speculatively.
		return e.failCycle(result, results, snapshot, err)
	}

	accepted, rejected, errored, applyErr := e.policy.Apply(results)
	result.Accepted = accepted
	result.Rejected = rejected
	result.Errored = errored

	if applyErr != nil {
		result.Error = applyErr.Error()
		e.notifyFailed(applyErr)
		return result, applyErr
	}

	e.notifyCompleted(result)
	return result, nil
}

// syncOneByOne submits the snapshot one entry at a time, in insertion order.
// A context expiry aborts the loop; entries not yet answered are handled by
// failCycle.
func (e *Engine) syncOneByOne(ctx context.Context, snapshot []models.QueueEntry) ([]EntryResult, error) {
	results := make([]EntryResult, 0, len(snapshot))

	for _, entry := range snapshot {
		outcome, err := e.client.SyncOne(ctx, entry)
		results = append(results, EntryResult{ID: entry.ID, Outcome: outcome})
		if err != nil {
			return results, errors.Wrap(errors.ErrSyncTimeout, "sync cycle timed out", err)
		}
	}

	return results, nil
}

// failCycle records a whole-cycle failure. Outcomes already received
// (partial single-item progress) are applied — an accepted sibling is never
// rolled back — and every unanswered snapshot entry is marked transient.
func (e *Engine) failCycle(result *SyncResult, partial []EntryResult, snapshot []models.QueueEntry, cause error) (*SyncResult, error) {
	accepted, rejected, errored, applyErr := e.policy.Apply(partial)
	result.Accepted = accepted
	result.Rejected = rejected
	result.Errored = errored

	answered := make(map[string]bool, len(partial))
	for _, r := range partial {
		answered[r.ID] = true
	}

	var unanswered []models.QueueEntry
	for _, entry := range snapshot {
		if !answered[entry.ID] {
			unanswered = append(unanswered, entry)
		}
	}

	message := cause.Error()
	if errors.Is(cause, errors.ErrSyncTimeout) {
		message = "timeout"
	}
	result.Errored += e.policy.MarkTransient(unanswered, message)
	result.Error = cause.Error()

	if applyErr != nil {
		logging.Error("Failed to merge partial sync results", applyErr)
	}

	e.notifyFailed(cause)
	return result, cause
}

func (e *Engine) notifyCompleted(result *SyncResult) {
	logging.Info("Sync cycle completed",
		map[string]interface{}{
			"total":    result.Total,
			"accepted": result.Accepted,
			"rejected": result.Rejected,
			"errored":  result.Errored,
		})
	if e.events != nil {
		e.events.OnSyncCompleted(result)
		e.events.OnQueueUpdated(e.queue.Stats())
	}
}

func (e *Engine) notifyFailed(cause error) {
	logging.ErrorWithCode("Sync cycle failed", string(errors.Code(cause)), cause)
	if e.events != nil {
		e.events.OnSyncFailed(string(errors.Code(cause)), cause.Error())
		e.events.OnQueueUpdated(e.queue.Stats())
	}
}
