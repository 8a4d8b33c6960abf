package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/tomoima525/daily-diary/internal/bootstrap"
	"github.com/tomoima525/daily-diary/internal/dispatch"
	"github.com/tomoima525/daily-diary/internal/http/handlers"
	"github.com/tomoima525/daily-diary/internal/http/httpapi"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/publish"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, files, err := bootstrap.Store(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}
	invoker, shutdownJobs, err := bootstrap.Invoker(cfg, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure dispatch")
	}

	app := &handlers.App{
		Submitter: dispatch.NewDispatcher(invoker, infra.ComponentLogger(logger, "dispatch")),
		Oracle:    publish.NewOracle(store, cfg.URLTTL),
		Files:     files,
		Logger:    logger,
		Component: "api",
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		CORSOrigins:     cfg.CORSOrigins,
		SubmitRateLimit: cfg.SubmitRateLimit,
		DefaultLocale:   cfg.DefaultLocale,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, cfg.Port, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", server.Addr()).
			Str("storage", cfg.StorageDriver).
			Str("dispatch", cfg.DispatchMode).
			Msg("api: listening")
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("api: failed to shutdown server")
		}
		// In-process jobs get the rest of the pipeline budget to finish.
		jobsCtx, cancelJobs := context.WithTimeout(context.Background(), cfg.PipelineTimeout)
		defer cancelJobs()
		return shutdownJobs(jobsCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("api: stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("api: stopped")
}
