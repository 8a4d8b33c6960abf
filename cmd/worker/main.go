package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tomoima525/daily-diary/internal/bootstrap"
	"github.com/tomoima525/daily-diary/internal/dispatch"
	"github.com/tomoima525/daily-diary/internal/http/handlers"
	"github.com/tomoima525/daily-diary/internal/http/httpapi"
	"github.com/tomoima525/daily-diary/internal/infra"
)

// staleWorkspaceAge is how old an unlocked workspace must be before the
// startup sweep removes it.
const staleWorkspaceAge = time.Hour

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, _, err := bootstrap.Store(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	p, err := bootstrap.NewPipeline(cfg, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure pipeline")
	}
	if err := p.Composer.CheckAvailable(ctx); err != nil {
		logger.Fatal().Err(err).Str("ffmpeg", cfg.FFmpegPath).Msg("worker: transcoder check failed")
	}

	swept := p.Workspaces.SweepStale(ctx, staleWorkspaceAge)
	for _, err := range swept.Errors {
		logger.Warn().Err(err).Msg("worker: stale workspace sweep")
	}
	logger.Info().
		Int("removed", len(swept.Removed)).
		Int("skipped", len(swept.Skipped)).
		Str("root", p.Workspaces.Root()).
		Msg("worker: stale workspaces swept")

	jobs := dispatch.NewLocalInvoker(p.Runner, cfg.PipelineTimeout, infra.ComponentLogger(logger, "dispatch"))
	app := &handlers.App{Jobs: jobs, Logger: logger, Component: "worker"}
	server := infra.NewHTTPServer(cfg, cfg.WorkerPort, httpapi.NewWorkerRouter(app, logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Msg("worker: listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("worker: failed to shutdown server")
		}
		jobsCtx, cancelJobs := context.WithTimeout(context.Background(), cfg.PipelineTimeout)
		defer cancelJobs()
		return jobs.Shutdown(jobsCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("worker: stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("worker: stopped")
}
