// Package bootstrap assembles the pipeline from configuration. The api,
// worker and memoryctl binaries share it so they wire storage and the
// pipeline the same way.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tomoima525/daily-diary/internal/caption"
	"github.com/tomoima525/daily-diary/internal/dispatch"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/pipeline"
	"github.com/tomoima525/daily-diary/internal/providers/genai"
	"github.com/tomoima525/daily-diary/internal/publish"
	"github.com/tomoima525/daily-diary/internal/storage"
	"github.com/tomoima525/daily-diary/internal/video"
	"github.com/tomoima525/daily-diary/internal/workspace"
)

// Store opens the configured Asset Store. files is non-nil only for the
// filesystem driver, whose signed URLs the api serves itself.
func Store(ctx context.Context, cfg *infra.Config) (storage.Store, *storage.FileStore, error) {
	switch cfg.StorageDriver {
	case infra.StorageDriverS3:
		s3Store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3Store, nil, nil
	default:
		fs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL, storage.NewSigner(cfg.StorageSigningSecret))
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	}
}

// Pipeline bundles the runner with the collaborators the binaries also
// drive directly.
type Pipeline struct {
	Runner     *pipeline.Runner
	Workspaces *workspace.Manager
	Composer   *video.Composer
}

// NewPipeline wires captioner, composer and publisher over store.
func NewPipeline(cfg *infra.Config, store storage.Store, logger infra.Logger) (*Pipeline, error) {
	genaiLogger := infra.ComponentLogger(logger, "genai")
	client, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &genaiLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: gemini client: %w", err)
	}
	if client.Synthetic() {
		logger.Warn().Str("model", client.Model()).Msg("bootstrap: GEMINI_API_KEY missing, captions are synthetic")
	}

	workspaces, err := workspace.NewManager(cfg.WorkspaceRoot, infra.ComponentLogger(logger, "workspace"))
	if err != nil {
		return nil, err
	}

	profile := video.DefaultProfile()
	profile.Width = cfg.VideoWidth
	profile.Height = cfg.VideoHeight
	profile.FPS = cfg.VideoFPS
	timing := video.Timing{
		FrameDuration: cfg.FrameDuration,
		FadeIn:        cfg.FadeIn,
		FadeOut:       cfg.FadeOut,
		AudioFadeOut:  cfg.AudioFadeOut,
	}
	composer := video.NewComposer(cfg.FFmpegPath, timing, profile, infra.ComponentLogger(logger, "video"))

	fetcher := caption.NewFetcher(store, caption.FetcherOptions{
		HTTPClient:        &http.Client{Timeout: 60 * time.Second},
		AllowPrivateHosts: cfg.SourceAllowPrivateHosts,
		SourcePrefix:      cfg.SourceKeyPrefix,
	})
	runner, err := pipeline.NewRunner(pipeline.Options{
		Workspaces: workspaces,
		Captioner:  caption.NewCaptioner(client, fetcher, infra.ComponentLogger(logger, "caption")),
		Composer:   composer,
		Publisher:  publish.NewPublisher(store, infra.ComponentLogger(logger, "publish")),
		Store:      store,
		AudioKey:   cfg.BackgroundAudioKey,
		Logger:     infra.ComponentLogger(logger, "pipeline"),
	})
	if err != nil {
		return nil, err
	}
	return &Pipeline{Runner: runner, Workspaces: workspaces, Composer: composer}, nil
}

// Invoker returns the api's one-way job hand-off. In local mode jobs run in
// this process and shutdown waits for them; in http mode they are posted to
// the worker.
func Invoker(cfg *infra.Config, store storage.Store, logger infra.Logger) (dispatch.Invoker, func(context.Context) error, error) {
	if cfg.DispatchMode == infra.DispatchModeHTTP {
		return dispatch.NewHTTPInvoker(cfg.WorkerURL, nil), func(context.Context) error { return nil }, nil
	}
	p, err := NewPipeline(cfg, store, logger)
	if err != nil {
		return nil, nil, err
	}
	local := dispatch.NewLocalInvoker(p.Runner, cfg.PipelineTimeout, infra.ComponentLogger(logger, "dispatch"))
	return local, local.Shutdown, nil
}
