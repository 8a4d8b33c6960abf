package publish

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/storage"
)

const (
	contentDisposition = "inline"
	cacheControl       = "max-age=86400"
)

// Publisher uploads composed videos under their deterministic output key.
type Publisher struct {
	store  storage.Store
	logger infra.Logger
}

// NewPublisher binds a publisher to the Asset Store.
func NewPublisher(store storage.Store, logger infra.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

// Publish uploads the file at path to videos/vid_{jobID}.mp4 and returns the
// stored object's locator.
func (p *Publisher) Publish(ctx context.Context, jobID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("publish: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("publish: stat %s: %w", path, err)
	}

	key := domain.OutputKey(jobID)
	started := time.Now()
	locator, err := p.store.Put(ctx, key, f, storage.PutOptions{
		ContentType:        domain.VideoContentType,
		ContentDisposition: contentDisposition,
		CacheControl:       cacheControl,
	})
	if err != nil {
		return "", fmt.Errorf("publish: upload %s: %w", key, err)
	}

	p.logger.Info().
		Str("job_id", jobID).
		Str("key", key).
		Str("locator", locator).
		Str("size", humanize.Bytes(uint64(info.Size()))).
		Dur("elapsed", time.Since(started)).
		Msg("publish: video uploaded")
	return locator, nil
}
