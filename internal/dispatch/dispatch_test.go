package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/pipeline"
)

type recordingInvoker struct {
	jobs []domain.Job
	err  error
}

func (r *recordingInvoker) Invoke(ctx context.Context, job domain.Job) error {
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

type blockingRunner struct {
	mu      sync.Mutex
	started chan string
	release chan struct{}
	ctxErr  error
}

func (b *blockingRunner) Run(ctx context.Context, job domain.Job) (pipeline.Result, error) {
	b.started <- job.ID
	select {
	case <-b.release:
	case <-ctx.Done():
		b.mu.Lock()
		b.ctxErr = ctx.Err()
		b.mu.Unlock()
		return pipeline.Result{}, ctx.Err()
	}
	return pipeline.Result{JobID: job.ID}, nil
}

func memories() []domain.PhotoMemory {
	return []domain.PhotoMemory{{Name: "image_0", SourceLocator: "bucket/a.jpg", Feeling: "happy lunch"}}
}

func TestSubmitMintsJobAndInvokesOnce(t *testing.T) {
	inv := &recordingInvoker{}
	d := NewDispatcher(inv, infra.NopLogger())

	job, err := d.Submit(context.Background(), memories(), "ja")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if job.Locale != "ja" {
		t.Fatalf("locale = %q", job.Locale)
	}
	if _, err := uuid.Parse(job.ID); err != nil {
		t.Fatalf("job id %q is not a uuid", job.ID)
	}
	if len(inv.jobs) != 1 || inv.jobs[0].ID != job.ID {
		t.Fatalf("invocations = %+v", inv.jobs)
	}
}

func TestSubmitValidationSkipsInvoke(t *testing.T) {
	inv := &recordingInvoker{}
	d := NewDispatcher(inv, infra.NopLogger())
	_, err := d.Submit(context.Background(), []domain.PhotoMemory{}, "")
	if !errors.Is(err, domain.ErrInvalidJob) {
		t.Fatalf("error = %v, want ErrInvalidJob", err)
	}
	if len(inv.jobs) != 0 {
		t.Fatalf("invoker called for invalid job")
	}
}

func TestSubmitPropagatesInvokeFailure(t *testing.T) {
	d := NewDispatcher(&recordingInvoker{err: errors.New("worker down")}, infra.NopLogger())
	if _, err := d.Submit(context.Background(), memories(), ""); err == nil {
		t.Fatalf("expected invocation error")
	}
}

func TestSubmitRejectsBadLocale(t *testing.T) {
	inv := &recordingInvoker{}
	_, err := NewDispatcher(inv, infra.NopLogger()).Submit(context.Background(), memories(), "??")
	if !errors.Is(err, domain.ErrInvalidJob) || len(inv.jobs) != 0 {
		t.Fatalf("error = %v, invocations = %d", err, len(inv.jobs))
	}
}

func TestLocalInvokerDoesNotBlockAndOutlivesRequest(t *testing.T) {
	runner := &blockingRunner{started: make(chan string, 1), release: make(chan struct{})}
	inv := NewLocalInvoker(runner, time.Minute, infra.NopLogger())

	reqCtx, cancel := context.WithCancel(context.Background())
	job, _ := domain.NewJob(memories(), time.Now())
	if err := inv.Invoke(reqCtx, job); err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	cancel()

	select {
	case id := <-runner.started:
		if id != job.ID {
			t.Fatalf("runner got %q", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("job never started")
	}
	close(runner.release)

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	if err := inv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if runner.ctxErr != nil {
		t.Fatalf("job context cancelled with request: %v", runner.ctxErr)
	}
	if err := inv.Invoke(context.Background(), job); !errors.Is(err, ErrClosed) {
		t.Fatalf("Invoke after shutdown error = %v, want ErrClosed", err)
	}
}

func TestLocalInvokerEnforcesTimeout(t *testing.T) {
	runner := &blockingRunner{started: make(chan string, 1), release: make(chan struct{})}
	inv := NewLocalInvoker(runner, 20*time.Millisecond, infra.NopLogger())
	job, _ := domain.NewJob(memories(), time.Now())
	if err := inv.Invoke(context.Background(), job); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	if err := inv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !errors.Is(runner.ctxErr, context.DeadlineExceeded) {
		t.Fatalf("ctx err = %v, want deadline exceeded", runner.ctxErr)
	}
}

func TestHTTPInvoker(t *testing.T) {
	var got domain.Job
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	job, _ := domain.NewJob(memories(), time.Now())
	if err := NewHTTPInvoker(srv.URL+"/", srv.Client()).Invoke(context.Background(), job); err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if got.ID != job.ID || len(got.Memories) != 1 || got.Memories[0].Feeling != "happy lunch" {
		t.Fatalf("worker received %+v", got)
	}
}

func TestHTTPInvokerRejectsNonAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	job, _ := domain.NewJob(memories(), time.Now())
	if err := NewHTTPInvoker(srv.URL, srv.Client()).Invoke(context.Background(), job); err == nil {
		t.Fatalf("expected error for 503")
	}
}
