package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tomoima525/daily-diary/internal/domain"
)

// HTTPInvoker posts jobs to a worker's /jobs endpoint. The worker answers 202
// before running the pipeline, so the call never waits on the job itself.
type HTTPInvoker struct {
	endpoint string
	client   *http.Client
}

// NewHTTPInvoker targets the worker at baseURL.
func NewHTTPInvoker(baseURL string, client *http.Client) *HTTPInvoker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPInvoker{
		endpoint: strings.TrimRight(baseURL, "/") + "/jobs",
		client:   client,
	}
}

// Invoke delivers the job once. Non-202 answers are errors.
func (h *HTTPInvoker) Invoke(ctx context.Context, job domain.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("post job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("worker status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}
