package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/storage"
)

// Status is the polling view of a job. There is no failed state: a job that
// aborted is indistinguishable from one still running.
type Status struct {
	IsReady  bool   `json:"isReady"`
	VideoKey string `json:"videoKey,omitempty"`
}

// Locator is a time-limited access URL for a published video.
type Locator struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Oracle answers readiness queries from the existence of the output key.
type Oracle struct {
	store storage.Store
	ttl   time.Duration
}

// NewOracle builds an Oracle issuing locators valid for ttl.
func NewOracle(store storage.Store, ttl time.Duration) *Oracle {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Oracle{store: store, ttl: ttl}
}

// Status checks whether the job's video exists. Not-found is (false, nil);
// other storage errors are returned.
func (o *Oracle) Status(ctx context.Context, jobID string) (Status, error) {
	key := domain.OutputKey(jobID)
	ok, err := o.store.Exists(ctx, key)
	if err != nil {
		return Status{}, err
	}
	if !ok {
		return Status{IsReady: false}, nil
	}
	return Status{IsReady: true, VideoKey: key}, nil
}

// URL exchanges a ready job for a time-limited locator. It returns
// domain.ErrNotFound while the video does not exist yet.
func (o *Oracle) URL(ctx context.Context, jobID string) (Locator, error) {
	status, err := o.Status(ctx, jobID)
	if err != nil {
		return Locator{}, err
	}
	if !status.IsReady {
		return Locator{}, fmt.Errorf("%w: video for %s", domain.ErrNotFound, jobID)
	}
	url, expires, err := o.store.SignedURL(ctx, status.VideoKey, o.ttl)
	if err != nil {
		return Locator{}, fmt.Errorf("sign %s: %w", status.VideoKey, err)
	}
	return Locator{URL: url, ExpiresAt: expires.UTC()}, nil
}
