package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/pipeline"
)

// ErrClosed is returned by Invoke once the invoker is draining.
var ErrClosed = errors.New("dispatch: invoker is shutting down")

// JobRunner executes one job to completion.
type JobRunner interface {
	Run(ctx context.Context, job domain.Job) (pipeline.Result, error)
}

// LocalInvoker runs each job in its own goroutine. The job context is
// detached from the submitting request and bounded by timeout.
type LocalInvoker struct {
	runner  JobRunner
	timeout time.Duration
	logger  infra.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalInvoker builds an in-process invoker.
func NewLocalInvoker(runner JobRunner, timeout time.Duration, logger infra.Logger) *LocalInvoker {
	return &LocalInvoker{runner: runner, timeout: timeout, logger: logger}
}

// Invoke starts the job and returns immediately.
func (l *LocalInvoker) Invoke(ctx context.Context, job domain.Job) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.wg.Add(1)
	go l.run(context.WithoutCancel(ctx), job)
	return nil
}

func (l *LocalInvoker) run(parent context.Context, job domain.Job) {
	defer l.wg.Done()
	ctx, cancel := context.WithTimeout(parent, l.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Str("job_id", job.ID).Interface("panic", r).Msg("dispatch: pipeline panicked")
		}
	}()

	if _, err := l.runner.Run(ctx, job); err != nil {
		event := l.logger.Error().Err(err).Str("job_id", job.ID)
		if errors.Is(err, context.DeadlineExceeded) {
			event = event.Dur("timeout", l.timeout)
		}
		event.Msg("dispatch: job failed")
	}
}

// Shutdown stops accepting jobs and waits for in-flight ones until ctx ends.
func (l *LocalInvoker) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatch: waiting for in-flight jobs: %w", ctx.Err())
	}
}
