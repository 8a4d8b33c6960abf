package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/tomoima525/daily-diary/internal/caption"
	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/storage"
	"github.com/tomoima525/daily-diary/internal/video"
	"github.com/tomoima525/daily-diary/internal/workspace"
)

// Captioner renders photo memories into frame files inside dir.
type Captioner interface {
	CaptionAll(ctx context.Context, job domain.Job, dir string) ([]caption.Frame, error)
}

// Composer turns frames into a video file.
type Composer interface {
	Compose(ctx context.Context, req video.ComposeRequest) (string, error)
}

// Publisher uploads the composed video under the job's output key.
type Publisher interface {
	Publish(ctx context.Context, jobID, path string) (string, error)
}

// Options wires the runner's collaborators.
type Options struct {
	Workspaces *workspace.Manager
	Captioner  Captioner
	Composer   Composer
	Publisher  Publisher
	// Store supplies the optional background audio bed.
	Store    storage.Store
	AudioKey string
	Logger   infra.Logger
}

// Result summarizes a successful run.
type Result struct {
	JobID    string
	VideoKey string
	Locator  string
	Frames   int
	Audio    bool
	Elapsed  time.Duration
}

// Runner executes one job end to end: caption, compose, publish. Stages run
// strictly one after another and the workspace is released on every return.
type Runner struct {
	workspaces *workspace.Manager
	captioner  Captioner
	composer   Composer
	publisher  Publisher
	store      storage.Store
	audioKey   string
	logger     infra.Logger
}

// NewRunner validates and stores the collaborators.
func NewRunner(opts Options) (*Runner, error) {
	switch {
	case opts.Workspaces == nil:
		return nil, errors.New("pipeline: workspace manager is required")
	case opts.Captioner == nil:
		return nil, errors.New("pipeline: captioner is required")
	case opts.Composer == nil:
		return nil, errors.New("pipeline: composer is required")
	case opts.Publisher == nil:
		return nil, errors.New("pipeline: publisher is required")
	}
	return &Runner{
		workspaces: opts.Workspaces,
		captioner:  opts.Captioner,
		composer:   opts.Composer,
		publisher:  opts.Publisher,
		store:      opts.Store,
		audioKey:   opts.AudioKey,
		logger:     opts.Logger,
	}, nil
}

// Run executes job. Any returned error is fatal for the job and means no
// output object was written.
func (r *Runner) Run(ctx context.Context, job domain.Job) (Result, error) {
	if err := job.Validate(); err != nil {
		return Result{}, err
	}
	logger := r.logger.With().Str("job_id", job.ID).Logger()
	started := time.Now()
	logger.Info().Int("photos", len(job.Memories)).Msg("pipeline: started")

	ws, err := r.workspaces.Acquire(job.ID)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: acquire workspace: %w", err)
	}
	defer func() {
		if releaseErr := ws.Release(); releaseErr != nil {
			logger.Warn().Err(releaseErr).Msg("pipeline: workspace release failed")
		}
	}()

	frames, err := r.captioner.CaptionAll(ctx, job, ws.Dir())
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: caption: %w", err)
	}
	paths := make([]string, len(frames))
	for i, f := range frames {
		paths[i] = f.Path
	}

	audioPath := r.fetchAudioBed(ctx, ws, logger)

	output, err := r.composer.Compose(ctx, video.ComposeRequest{
		JobID:      job.ID,
		FramePaths: paths,
		AudioPath:  audioPath,
		OutputPath: ws.Path("output.mp4"),
	})
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: compose: %w", err)
	}

	locator, err := r.publisher.Publish(ctx, job.ID, output)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: publish: %w", err)
	}

	res := Result{
		JobID:    job.ID,
		VideoKey: domain.OutputKey(job.ID),
		Locator:  locator,
		Frames:   len(frames),
		Audio:    audioPath != "",
		Elapsed:  time.Since(started),
	}
	logger.Info().
		Str("video_key", res.VideoKey).
		Int("frames", res.Frames).
		Bool("audio", res.Audio).
		Dur("elapsed", res.Elapsed).
		Msg("pipeline: completed")
	return res, nil
}

// fetchAudioBed copies the background audio into the workspace. Any failure
// is logged and yields "", so the video is composed without sound.
func (r *Runner) fetchAudioBed(ctx context.Context, ws *workspace.Workspace, logger infra.Logger) string {
	if r.store == nil || r.audioKey == "" {
		return ""
	}
	dest := ws.Path("bgm" + path.Ext(r.audioKey))
	if err := copyObject(ctx, r.store, r.audioKey, dest); err != nil {
		logger.Warn().Err(err).Str("key", r.audioKey).Msg("pipeline: background audio unavailable, continuing without sound")
		_ = os.Remove(dest)
		return ""
	}
	return dest
}

func copyObject(ctx context.Context, store storage.Store, key, dest string) error {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, rc)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("audio object is empty")
	}
	return nil
}
