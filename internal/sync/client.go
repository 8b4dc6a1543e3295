package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/vendly/vendly-pos/backend/internal/errors"
	"github.com/vendly/vendly-pos/backend/internal/models"
)

// ClientConfig holds sync endpoint configuration.
type ClientConfig struct {
	BatchEndpoint  string
	SingleEndpoint string
}

// Client performs the network exchange with the sales backend. It classifies
// responses into per-entry outcomes but never decides retry vs give-up; that
// is the Policy's job.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a sync client. Request lifetimes are bounded only by the
// caller's context so the cycle budget is the single timeout authority and
// an expiry always classifies as SYNC_TIMEOUT.
func NewClient(config ClientConfig) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// salePayload is the wire shape of one submitted sale. The id doubles as the
// idempotency key; the server treats a repeated id as already applied.
type salePayload struct {
	ID         string            `json:"id"`
	Items      []models.SaleItem `json:"items"`
	CustomerID string            `json:"customer_id,omitempty"`
	CreatedAt  int64             `json:"created_at"`
}

func toPayload(entry models.QueueEntry) salePayload {
	return salePayload{
		ID:         entry.ID,
		Items:      entry.Items,
		CustomerID: entry.CustomerID,
		CreatedAt:  entry.CreatedAt,
	}
}

// batchResponse is the per-id outcome map returned by the batch endpoint.
type batchResponse struct {
	Results map[string]entryOutcome `json:"results"`
}

type entryOutcome struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// singleResponse is the body returned by the single-item endpoint.
type singleResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SyncBatch submits the snapshot in one call to the batch endpoint and
// returns per-entry results in submission order.
//
// A non-nil error means the cycle as a whole failed:
//   - BATCH_UNSUPPORTED: the route itself is unavailable; the caller should
//     fall back to SyncOne.
//   - SYNC_TIMEOUT / SYNC_FAILED: transient whole-cycle failure; the caller
//     marks every snapshot entry as a server error.
func (c *Client) SyncBatch(ctx context.Context, entries []models.QueueEntry) ([]EntryResult, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	payloads := make([]salePayload, len(entries))
	for i, entry := range entries {
		payloads[i] = toPayload(entry)
	}

	body, err := json.Marshal(payloads)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to marshal batch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BatchEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to build batch request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fall through to per-entry parsing
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusMethodNotAllowed,
		resp.StatusCode == http.StatusNotImplemented:
		// The route itself failed, not the items in it.
		return nil, errors.New(errors.ErrBatchUnsupported,
			fmt.Sprintf("batch endpoint returned status %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The server refused the batch payload wholesale.
		reason := readErrorReason(resp.Body, resp.StatusCode)
		results := make([]EntryResult, len(entries))
		for i, entry := range entries {
			results[i] = EntryResult{ID: entry.ID, Outcome: Outcome{Status: OutcomeRejected, Reason: reason}}
		}
		return results, nil
	default:
		return nil, errors.New(errors.ErrSyncFailed,
			fmt.Sprintf("batch endpoint returned status %d", resp.StatusCode))
	}

	var parsed batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(errors.ErrSyncFailed, "failed to decode batch response", err)
	}

	results := make([]EntryResult, len(entries))
	for i, entry := range entries {
		outcome, ok := parsed.Results[entry.ID]
		if !ok {
			// The server said nothing about this entry; retry it later.
			results[i] = EntryResult{ID: entry.ID,
				Outcome: Outcome{Status: OutcomeServerError, Reason: "missing from batch response"}}
			continue
		}
		results[i] = EntryResult{ID: entry.ID, Outcome: classifyOutcome(outcome)}
	}

	return results, nil
}

// SyncOne submits a single entry to the single-item endpoint. It is the
// fallback path when the batch route is unavailable. All failures are
// classified into the returned Outcome; the error is non-nil only when the
// context expired, which the caller treats as a whole-cycle timeout.
func (c *Client) SyncOne(ctx context.Context, entry models.QueueEntry) (Outcome, error) {
	body, err := json.Marshal(toPayload(entry))
	if err != nil {
		return Outcome{Status: OutcomeServerError, Reason: err.Error()}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.SingleEndpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Status: OutcomeServerError, Reason: err.Error()}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Status: OutcomeServerError, Reason: "timeout"}, ctx.Err()
		}
		return Outcome{Status: OutcomeServerError, Reason: err.Error()}, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed singleResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			// A 2xx with an unreadable body is still an acknowledgment.
			return Outcome{Status: OutcomeAccepted}, nil
		}
		return classifyOutcome(entryOutcome{Status: parsed.Status, Reason: parsed.Error}), nil
	case resp.StatusCode == http.StatusConflict:
		// Already applied under this idempotency key.
		return Outcome{Status: OutcomeDuplicate}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Outcome{Status: OutcomeRejected, Reason: readErrorReason(resp.Body, resp.StatusCode)}, nil
	default:
		return Outcome{Status: OutcomeServerError,
			Reason: fmt.Sprintf("status %d", resp.StatusCode)}, nil
	}
}

// classifyOutcome maps a server-reported status string onto an Outcome.
// Unknown statuses are treated as transient so the entry is retried rather
// than dropped.
func classifyOutcome(o entryOutcome) Outcome {
	switch o.Status {
	case "accepted", "ok", "success":
		return Outcome{Status: OutcomeAccepted}
	case "duplicate", "already_applied":
		return Outcome{Status: OutcomeDuplicate}
	case "rejected":
		reason := o.Reason
		if reason == "" {
			reason = "rejected by server"
		}
		return Outcome{Status: OutcomeRejected, Reason: reason}
	case "error", "server_error":
		reason := o.Reason
		if reason == "" {
			reason = "server error"
		}
		return Outcome{Status: OutcomeServerError, Reason: reason}
	default:
		return Outcome{Status: OutcomeServerError,
			Reason: fmt.Sprintf("unknown status %q", o.Status)}
	}
}

// classifyTransportError distinguishes the cycle timeout from other network
// failures. Both are transient; the code tells the scheduler and operator why.
func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded || os.IsTimeout(err) {
		return errors.Wrap(errors.ErrSyncTimeout, "sync cycle timed out", err)
	}
	return errors.Wrap(errors.ErrSyncFailed, "sync request failed", err)
}

// readErrorReason extracts a rejection reason from an error body, falling
// back to the HTTP status.
func readErrorReason(body io.Reader, statusCode int) string {
	var parsed singleResponse
	if err := json.NewDecoder(body).Decode(&parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return fmt.Sprintf("http %d", statusCode)
}
