// Package handlers provides the operator-facing REST API for the offline
// sales queue and sync engine.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vendly/vendly-pos/backend/internal/errors"
	"github.com/vendly/vendly-pos/backend/internal/logging"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", err)
	}
}

// writeError maps an application error onto an HTTP status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	code := errors.Code(err)

	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCapacityExceeded:
		// The sale cannot be queued; checkout must surface this, never
		// silently drop a completed sale.
		status = http.StatusInsufficientStorage
	case errors.ErrDuplicateEntry, errors.ErrConfirmationRequired:
		status = http.StatusConflict
	case errors.ErrEntryNotFound, errors.ErrNotFound:
		status = http.StatusNotFound
	case errors.ErrInvalid, errors.ErrValidation:
		status = http.StatusBadRequest
	}

	writeJSON(w, status, map[string]interface{}{
		"code":  string(code),
		"error": err.Error(),
	})
}
