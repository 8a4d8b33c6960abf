package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/infra"
)

// Invoker hands a job to the pipeline without waiting for its outcome.
type Invoker interface {
	Invoke(ctx context.Context, job domain.Job) error
}

// Dispatcher is the front door: it validates a submission, mints the job
// identifier and fires the pipeline once.
type Dispatcher struct {
	invoker Invoker
	logger  infra.Logger
	now     func() time.Time
}

// NewDispatcher builds a dispatcher over invoker.
func NewDispatcher(invoker Invoker, logger infra.Logger) *Dispatcher {
	return &Dispatcher{invoker: invoker, logger: logger, now: time.Now}
}

// Submit validates memories and dispatches a new job captioned in locale
// (empty lets the model choose). The returned job is already in flight; its
// eventual success or failure is never reported here. Invocation errors are
// returned as-is and never retried.
func (d *Dispatcher) Submit(ctx context.Context, memories []domain.PhotoMemory, locale string) (domain.Job, error) {
	job, err := domain.NewJob(memories, d.now())
	if err != nil {
		return domain.Job{}, err
	}
	if job, err = job.WithLocale(locale); err != nil {
		return domain.Job{}, err
	}
	if err := d.invoker.Invoke(ctx, job); err != nil {
		d.logger.Error().Err(err).Str("job_id", job.ID).Msg("dispatch: invocation failed")
		return domain.Job{}, fmt.Errorf("dispatch: invoke pipeline: %w", err)
	}
	d.logger.Info().
		Str("job_id", job.ID).
		Int("photos", len(job.Memories)).
		Str("locale", job.Locale).
		Msg("dispatch: job accepted")
	return job, nil
}
