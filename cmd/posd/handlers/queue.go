package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendly/vendly-pos/backend/internal/errors"
	"github.com/vendly/vendly-pos/backend/internal/models"
	"github.com/vendly/vendly-pos/backend/internal/store"
	"github.com/vendly/vendly-pos/backend/internal/uuid"
)

// QueueBroadcaster pushes queue-state changes to connected operator UIs.
type QueueBroadcaster interface {
	OnQueueUpdated(stats map[string]int)
}

// QueueHandler handles queue inspection and administrative operations.
type QueueHandler struct {
	queue       *store.Queue
	offlineMode bool
	wsHub       QueueBroadcaster
}

// NewQueueHandler creates a QueueHandler. offlineMode mirrors the
// ENABLE_OFFLINE_MODE toggle: when off, sales are never queued locally.
func NewQueueHandler(queue *store.Queue, offlineMode bool) *QueueHandler {
	return &QueueHandler{
		queue:       queue,
		offlineMode: offlineMode,
	}
}

// SetWebSocketHub sets the hub for queue-change broadcasts.
func (h *QueueHandler) SetWebSocketHub(wsHub QueueBroadcaster) {
	h.wsHub = wsHub
}

// RegisterQueueRoutes mounts the queue API.
func RegisterQueueRoutes(r chi.Router, h *QueueHandler) {
	r.Route("/api/queue", func(r chi.Router) {
		r.Get("/", h.ListQueue)
		r.Post("/", h.EnqueueSale)
		r.Post("/retry", h.RetryFailed)
		r.Delete("/", h.ClearQueue)
		r.Delete("/failed", h.ClearFailed)
		r.Delete("/{id}", h.RemoveSale)
	})
}

// entryView is a queue entry plus its derived operator-facing state. The
// state is computed, not stored, so the schema cannot drift.
type entryView struct {
	models.QueueEntry
	State models.EntryState `json:"state"`
}

// ListQueue handles GET /api/queue.
func (h *QueueHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	entries := h.queue.GetAll()

	views := make([]entryView, len(entries))
	for i, entry := range entries {
		views[i] = entryView{
			QueueEntry: entry,
			State:      entry.State(h.queue.MaxRetries()),
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries":     views,
		"stats":       h.queue.Stats(),
		"max_retries": h.queue.MaxRetries(),
	})
}

// enqueueRequest is the checkout collaborator's payload.
type enqueueRequest struct {
	ID         string            `json:"id,omitempty"`
	Items      []models.SaleItem `json:"items"`
	CustomerID string            `json:"customer_id,omitempty"`
}

// EnqueueSale handles POST /api/queue. The checkout flow calls this when a
// live submission failed or the terminal is known to be offline.
func (h *QueueHandler) EnqueueSale(w http.ResponseWriter, r *http.Request) {
	if !h.offlineMode {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"code":  "OFFLINE_MODE_DISABLED",
			"error": "offline queuing is disabled on this terminal",
		})
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
		return
	}

	// A caller-supplied id becomes the idempotency key, so it must be a real
	// UUID v4; an empty id gets one generated at enqueue time.
	if req.ID != "" {
		if err := uuid.Validate(req.ID); err != nil {
			writeError(w, errors.Wrap(errors.ErrValidation, "invalid sale id", err))
			return
		}
	}

	entry, err := h.queue.Enqueue(models.QueueEntry{
		ID:         req.ID,
		Items:      req.Items,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast()
	writeJSON(w, http.StatusCreated, entry)
}

// RemoveSale handles DELETE /api/queue/{id}. Removing a missing id succeeds.
func (h *QueueHandler) RemoveSale(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.queue.Remove(id); err != nil {
		writeError(w, err)
		return
	}

	h.broadcast()
	w.WriteHeader(http.StatusNoContent)
}

// ClearFailed handles DELETE /api/queue/failed: drops permanently rejected
// entries only.
func (h *QueueHandler) ClearFailed(w http.ResponseWriter, r *http.Request) {
	removed, err := h.queue.ClearFailed()
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast()
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

// ClearQueue handles DELETE /api/queue. Destroys every queued sale, so the
// caller must pass ?confirm=true.
func (h *QueueHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, errors.New(errors.ErrConfirmationRequired,
			"clearing the queue requires confirm=true"))
		return
	}

	removed := h.queue.Size()
	if err := h.queue.Clear(); err != nil {
		writeError(w, err)
		return
	}

	h.broadcast()
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

// RetryFailed handles POST /api/queue/retry: resets exceeded-retries entries
// so the next cycle picks them up.
func (h *QueueHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	reset, err := h.queue.RetryFailed()
	if err != nil {
		writeError(w, err)
		return
	}

	h.broadcast()
	writeJSON(w, http.StatusOK, map[string]interface{}{"reset": reset})
}

func (h *QueueHandler) broadcast() {
	if h.wsHub != nil {
		h.wsHub.OnQueueUpdated(h.queue.Stats())
	}
}
