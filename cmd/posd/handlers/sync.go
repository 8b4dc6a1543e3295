package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vendly/vendly-pos/backend/internal/errors"
	"github.com/vendly/vendly-pos/backend/internal/sync/scheduler"
)

// SyncHandler exposes manual sync control and scheduler status.
type SyncHandler struct {
	scheduler *scheduler.Scheduler
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(sched *scheduler.Scheduler) *SyncHandler {
	return &SyncHandler{scheduler: sched}
}

// RegisterSyncRoutes mounts the sync API.
func RegisterSyncRoutes(r chi.Router, h *SyncHandler) {
	r.Route("/api/sync", func(r chi.Router) {
		r.Post("/", h.SyncNow)
		r.Get("/status", h.GetStatus)
		r.Post("/online", h.SetOnline)
	})
}

// SyncNow handles POST /api/sync. A trigger during an active cycle is
// coalesced, not dropped; started=false tells the operator it was folded
// into the in-flight work.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	started := h.scheduler.SyncNow()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"started": started,
		"state":   h.scheduler.CurrentState(),
	})
}

// GetStatus handles GET /api/sync/status.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.GetStatus())
}

// onlineRequest reports a connectivity change from the shell.
type onlineRequest struct {
	Online bool `json:"online"`
}

// SetOnline handles POST /api/sync/online. The shell signals connectivity
// transitions here; regaining the network schedules a sync.
func (h *SyncHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var req onlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "invalid request body", err))
		return
	}

	h.scheduler.SetOnline(req.Online)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online": h.scheduler.IsOnline(),
	})
}
