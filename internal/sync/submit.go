package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/indianbuild/passport-core/internal/models"
)

// submissionEnvelope is the wire format for one upload submission.
type submissionEnvelope struct {
	ID        models.UUID     `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at"`
}

// HTTPSubmitter delivers pending uploads to the registry over HTTP. The
// upload ID doubles as the idempotency key so the registry can deduplicate
// re-submissions after an interrupted sync.
type HTTPSubmitter struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSubmitter creates a submitter posting to the given endpoint.
func NewHTTPSubmitter(endpoint string, timeout time.Duration) *HTTPSubmitter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSubmitter{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Submit posts the upload payload. Any non-2xx response is a failure.
func (s *HTTPSubmitter) Submit(ctx context.Context, upload *models.PendingUpload) error {
	body, err := json.Marshal(submissionEnvelope{
		ID:        upload.ID,
		Payload:   upload.Payload,
		CreatedAt: upload.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", upload.ID.String())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("submission request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a short error body for the failure record.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(msg) > 0 {
			return fmt.Errorf("registry rejected submission: status %d: %s", resp.StatusCode, msg)
		}
		return fmt.Errorf("registry rejected submission: status %d", resp.StatusCode)
	}
	return nil
}
