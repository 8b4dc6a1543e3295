// Package sync provides unit tests for the sync client's response
// classification.
package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vendly/vendly-pos/backend/internal/errors"
	"github.com/vendly/vendly-pos/backend/internal/models"
)

func saleEntry(id string) models.QueueEntry {
	return models.QueueEntry{
		ID: id,
		Items: []models.SaleItem{
			{ProductID: 7, Quantity: 2, UnitPrice: 500, Discount: 0},
		},
		CreatedAt: 1700000000,
	}
}

func newTestClient(batchURL, singleURL string) *Client {
	return NewClient(ClientConfig{
		BatchEndpoint:  batchURL,
		SingleEndpoint: singleURL,
	})
}

// TestSyncBatchOutcomes tests per-entry classification of a mixed batch
// response.
func TestSyncBatchOutcomes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payloads []map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
			t.Errorf("Bad batch payload: %v", err)
		}
		if len(payloads) != 4 {
			t.Errorf("Expected 4 payloads, got %d", len(payloads))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": map[string]interface{}{
				"s1": map[string]string{"status": "accepted"},
				"s2": map[string]string{"status": "duplicate"},
				"s3": map[string]string{"status": "rejected", "reason": "invalid_product"},
				"s4": map[string]string{"status": "error", "reason": "db unavailable"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	entries := []models.QueueEntry{saleEntry("s1"), saleEntry("s2"), saleEntry("s3"), saleEntry("s4")}
	results, err := client.SyncBatch(context.Background(), entries)
	if err != nil {
		t.Fatalf("SyncBatch failed: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("Expected 4 results, got %d", len(results))
	}

	if !results[0].Outcome.Accepted() {
		t.Errorf("s1 should be accepted, got %+v", results[0].Outcome)
	}
	if !results[1].Outcome.Accepted() {
		t.Errorf("s2 (duplicate) should count as accepted, got %+v", results[1].Outcome)
	}
	if results[2].Outcome.Status != OutcomeRejected || results[2].Outcome.Reason != "invalid_product" {
		t.Errorf("s3 should be rejected with reason, got %+v", results[2].Outcome)
	}
	if !results[3].Outcome.Transient() {
		t.Errorf("s4 should be transient, got %+v", results[3].Outcome)
	}
}

// TestSyncBatchMissingID tests that an entry the server ignored is retried,
// not dropped.
func TestSyncBatchMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": map[string]interface{}{
				"s1": map[string]string{"status": "accepted"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	results, err := client.SyncBatch(context.Background(),
		[]models.QueueEntry{saleEntry("s1"), saleEntry("s2")})
	if err != nil {
		t.Fatalf("SyncBatch failed: %v", err)
	}

	if !results[1].Outcome.Transient() {
		t.Errorf("Unanswered entry should be transient, got %+v", results[1].Outcome)
	}
}

// TestSyncBatchRouteUnavailable tests the fallback signal when the batch
// route itself is missing.
func TestSyncBatchRouteUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		client := newTestClient(server.URL, server.URL)
		_, err := client.SyncBatch(context.Background(), []models.QueueEntry{saleEntry("s1")})

		if !errors.Is(err, errors.ErrBatchUnsupported) {
			t.Errorf("Status %d: expected BATCH_UNSUPPORTED, got %v", status, err)
		}
		server.Close()
	}
}

// TestSyncBatchWholesaleRejection tests that a 4xx on the batch payload
// rejects every entry permanently.
func TestSyncBatchWholesaleRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "malformed batch"})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	results, err := client.SyncBatch(context.Background(),
		[]models.QueueEntry{saleEntry("s1"), saleEntry("s2")})
	if err != nil {
		t.Fatalf("SyncBatch failed: %v", err)
	}

	for _, r := range results {
		if r.Outcome.Status != OutcomeRejected {
			t.Errorf("Entry %s should be rejected, got %+v", r.ID, r.Outcome)
		}
		if r.Outcome.Reason != "malformed batch" {
			t.Errorf("Entry %s: expected server reason, got %q", r.ID, r.Outcome.Reason)
		}
	}
}

// TestSyncBatchServerError tests that a 5xx fails the whole cycle.
func TestSyncBatchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	_, err := client.SyncBatch(context.Background(), []models.QueueEntry{saleEntry("s1")})
	if !errors.Is(err, errors.ErrSyncFailed) {
		t.Errorf("Expected SYNC_FAILED, got %v", err)
	}
}

// TestSyncBatchTimeout tests that a context deadline is classified as the
// cycle timeout.
func TestSyncBatchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.SyncBatch(ctx, []models.QueueEntry{saleEntry("s1")})
	if !errors.Is(err, errors.ErrSyncTimeout) {
		t.Errorf("Expected SYNC_TIMEOUT, got %v", err)
	}
}

// TestSyncBatchNetworkError tests that a connection failure with a live
// context is reported as a plain sync failure, not a timeout.
func TestSyncBatchNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening

	client := newTestClient(server.URL, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.SyncBatch(ctx, []models.QueueEntry{saleEntry("s1")})
	if !errors.Is(err, errors.ErrSyncFailed) {
		t.Errorf("Expected SYNC_FAILED, got %v", err)
	}
	if errors.Is(err, errors.ErrSyncTimeout) {
		t.Error("Connection failure must not be classified as a timeout")
	}
}

// TestSyncBatchEmpty tests that an empty snapshot makes no network call.
func TestSyncBatchEmpty(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	results, err := client.SyncBatch(context.Background(), nil)
	if err != nil || results != nil {
		t.Errorf("Expected nil, nil for empty batch, got %v, %v", results, err)
	}
	if called {
		t.Error("Empty batch should not hit the network")
	}
}

// TestSyncOneOutcomes tests classification of single-item responses.
func TestSyncOneOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       OutcomeStatus
	}{
		{"accepted", http.StatusOK, `{"status":"accepted"}`, OutcomeAccepted},
		{"duplicate body", http.StatusOK, `{"status":"duplicate"}`, OutcomeDuplicate},
		{"conflict means already applied", http.StatusConflict, ``, OutcomeDuplicate},
		{"validation rejection", http.StatusBadRequest, `{"error":"invalid_product"}`, OutcomeRejected},
		{"server error", http.StatusInternalServerError, ``, OutcomeServerError},
		{"bad gateway", http.StatusBadGateway, ``, OutcomeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(server.URL, server.URL)

			outcome, err := client.SyncOne(context.Background(), saleEntry("s1"))
			if err != nil {
				t.Fatalf("SyncOne returned error: %v", err)
			}
			if outcome.Status != tt.want {
				t.Errorf("Expected %s, got %s (%q)", tt.want, outcome.Status, outcome.Reason)
			}
		})
	}
}

// TestSyncOneRejectionReason tests that the server's reason is surfaced.
func TestSyncOneRejectionReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid_product"})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)

	outcome, _ := client.SyncOne(context.Background(), saleEntry("s3"))
	if outcome.Reason != "invalid_product" {
		t.Errorf("Expected reason invalid_product, got %q", outcome.Reason)
	}
}

// TestSyncOneIdempotent tests that resubmitting an already-applied id is
// accepted both times and never creates a second sale.
func TestSyncOneIdempotent(t *testing.T) {
	applied := make(map[string]int)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			ID string `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&payload)

		if applied[payload.ID] > 0 {
			// Already applied: acknowledge, do not re-record.
			json.NewEncoder(w).Encode(map[string]string{"status": "duplicate"})
			return
		}
		applied[payload.ID]++
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.URL)
	entry := saleEntry("s1")

	for i := 0; i < 2; i++ {
		outcome, err := client.SyncOne(context.Background(), entry)
		if err != nil {
			t.Fatalf("SyncOne attempt %d failed: %v", i+1, err)
		}
		if !outcome.Accepted() {
			t.Errorf("Attempt %d: expected accepted, got %+v", i+1, outcome)
		}
	}

	if applied["s1"] != 1 {
		t.Errorf("Server recorded the sale %d times", applied["s1"])
	}
}

// TestSyncOneNetworkError tests that a connection failure is transient.
func TestSyncOneNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening

	client := newTestClient(server.URL, server.URL)

	outcome, err := client.SyncOne(context.Background(), saleEntry("s1"))
	if err != nil {
		t.Fatalf("Network failure should classify, not error: %v", err)
	}
	if !outcome.Transient() {
		t.Errorf("Expected transient outcome, got %+v", outcome)
	}
}
