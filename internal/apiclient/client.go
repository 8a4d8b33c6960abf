// Package apiclient talks to the api's submission and status routes. It
// implements the caller side of the polling protocol.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/publish"
)

// DefaultPollInterval is the status polling cadence.
const DefaultPollInterval = 5 * time.Second

// Submission is the api's acknowledgement of a new job.
type Submission struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// APIError is a non-2xx answer from the api.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Message)
}

// Client calls one api deployment.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a client for baseURL.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// Submit posts a new job.
func (c *Client) Submit(ctx context.Context, memories []domain.PhotoMemory, locale string) (Submission, error) {
	payload, err := json.Marshal(map[string]any{"photo_memories": memories, "locale": locale})
	if err != nil {
		return Submission{}, err
	}
	var out Submission
	err = c.do(ctx, http.MethodPost, "/video", payload, &out)
	return out, err
}

// Status asks whether the job's video is published.
func (c *Client) Status(ctx context.Context, jobID string) (publish.Status, error) {
	var out publish.Status
	err := c.do(ctx, http.MethodGet, "/video/"+url.PathEscape(jobID), nil, &out)
	return out, err
}

// URL exchanges a ready job for a playback locator.
func (c *Client) URL(ctx context.Context, jobID string) (publish.Locator, error) {
	var out publish.Locator
	err := c.do(ctx, http.MethodGet, "/video/"+url.PathEscape(jobID)+"/url", nil, &out)
	return out, err
}

// WaitReady polls Status every interval until the job is ready or ctx ends.
// A job that failed in the pipeline never becomes ready, so callers should
// bound ctx. Transient poll errors are passed to onError and polling goes on;
// a 4xx answer stops it.
func (c *Client) WaitReady(ctx context.Context, jobID string, interval time.Duration, onError func(error)) (publish.Status, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := c.Status(ctx, jobID)
		switch {
		case err == nil && status.IsReady:
			return status, nil
		case err != nil:
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
				return publish.Status{}, err
			}
			if ctx.Err() != nil {
				return publish.Status{}, ctx.Err()
			}
			if onError != nil {
				onError(err)
			}
		}
		select {
		case <-ctx.Done():
			return publish.Status{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
