package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tomoima525/daily-diary/internal/apiclient"
	"github.com/tomoima525/daily-diary/internal/bootstrap"
	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/workspace"
)

const (
	defaultWaitTimeout = 30 * time.Minute
	defaultSweepAge    = time.Hour
)

func submitAction(ctx context.Context, cmd *cli.Command) error {
	memories, err := loadMemories(cmd.String("file"), cmd.StringSlice("photo"))
	if err != nil {
		return err
	}
	client := apiclient.New(cmd.String("api"), nil)
	sub, err := client.Submit(ctx, memories, cmd.String("locale"))
	if err != nil {
		return err
	}
	fmt.Println(sub.RequestID)
	if !cmd.Bool("wait") {
		return nil
	}
	return waitAndPrint(ctx, client, sub.RequestID, cmd.Duration("interval"), cmd.Duration("timeout"))
}

func waitAction(ctx context.Context, cmd *cli.Command) error {
	client := apiclient.New(cmd.String("api"), nil)
	return waitAndPrint(ctx, client, cmd.String("id"), cmd.Duration("interval"), cmd.Duration("timeout"))
}

func urlAction(ctx context.Context, cmd *cli.Command) error {
	loc, err := apiclient.New(cmd.String("api"), nil).URL(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	fmt.Println(loc.URL)
	return nil
}

func waitAndPrint(ctx context.Context, client *apiclient.Client, jobID string, interval, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	started := time.Now()
	_, err := client.WaitReady(ctx, jobID, interval, func(err error) {
		fmt.Fprintln(os.Stderr, "poll:", err)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("job %s not ready after %s; it may have failed", jobID, timeout)
	}
	if err != nil {
		return err
	}
	loc, err := client.URL(ctx, jobID)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "ready after %s\n", time.Since(started).Round(time.Second))
	fmt.Println(loc.URL)
	return nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	memories, err := loadMemories(cmd.String("file"), cmd.StringSlice("photo"))
	if err != nil {
		return err
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewLogger(cfg.AppEnv)

	job, err := domain.NewJob(memories, time.Now())
	if err != nil {
		return err
	}
	if job, err = job.WithLocale(cmd.String("locale")); err != nil {
		return err
	}

	store, _, err := bootstrap.Store(ctx, cfg)
	if err != nil {
		return err
	}
	p, err := bootstrap.NewPipeline(cfg, store, logger)
	if err != nil {
		return err
	}
	if err := p.Composer.CheckAvailable(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.PipelineTimeout)
	defer cancel()
	res, err := p.Runner.Run(ctx, job)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "composed %d frames in %s (audio: %t)\n", res.Frames, res.Elapsed.Round(time.Millisecond), res.Audio)
	fmt.Println(res.VideoKey)
	return nil
}

func sweepAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	workspaces, err := workspace.NewManager(cfg.WorkspaceRoot, infra.NewLogger(cfg.AppEnv))
	if err != nil {
		return err
	}
	res := workspaces.SweepStale(ctx, cmd.Duration("max-age"))
	for _, dir := range res.Removed {
		fmt.Println("removed", dir)
	}
	for _, dir := range res.Skipped {
		fmt.Println("skipped", dir)
	}
	fmt.Fprintf(os.Stderr, "%d removed, %d skipped\n", len(res.Removed), len(res.Skipped))
	return errors.Join(res.Errors...)
}

// loadMemories reads memories from a submission JSON file and appends any
// name|url|feeling flags in order.
func loadMemories(file string, photos []string) ([]domain.PhotoMemory, error) {
	var memories []domain.PhotoMemory
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		var body struct {
			PhotoMemories []domain.PhotoMemory `json:"photo_memories"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		memories = append(memories, body.PhotoMemories...)
	}
	for _, raw := range photos {
		parts := strings.SplitN(raw, "|", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("photo %q: want name|url|feeling", raw)
		}
		memories = append(memories, domain.PhotoMemory{
			Name:          strings.TrimSpace(parts[0]),
			SourceLocator: strings.TrimSpace(parts[1]),
			Feeling:       strings.TrimSpace(parts[2]),
		})
	}
	if len(memories) == 0 {
		return nil, errors.New("no photo memories given; use --file or --photo")
	}
	return memories, nil
}
