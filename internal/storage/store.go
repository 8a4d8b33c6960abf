package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("storage: object not found")

// PutOptions carries the HTTP metadata attached to an uploaded object.
type PutOptions struct {
	ContentType        string
	ContentDisposition string
	CacheControl       string
}

// Store is the Asset Store contract shared by the filesystem and S3 backends.
// Keys are slash-separated paths such as "videos/vid_<id>.mp4".
type Store interface {
	// Get opens the object for reading. Missing keys yield ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put stores body under key and returns the object's locator. The object
	// becomes visible to Exists only once fully written.
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (string, error)
	// Exists performs a metadata-only lookup.
	Exists(ctx context.Context, key string) (bool, error)
	// SignedURL returns a time-limited download locator for key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)
}
