package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/tomoima525/daily-diary/internal/apiclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "memoryctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	apiFlag := &cli.StringFlag{
		Name:    "api",
		Usage:   "base URL of the api",
		Value:   "http://localhost:8080",
		Sources: cli.EnvVars("MEMORY_API_URL"),
	}
	idFlag := &cli.StringFlag{Name: "id", Usage: "job request id", Required: true}
	memoryFlags := []cli.Flag{
		&cli.StringFlag{Name: "file", Usage: `JSON file shaped like {"photo_memories":[...]}`},
		&cli.StringSliceFlag{Name: "photo", Usage: "photo memory as name|url|feeling (repeatable)"},
		&cli.StringFlag{Name: "locale", Usage: "caption language as a BCP 47 tag"},
	}

	return &cli.Command{
		Name:  "memoryctl",
		Usage: "submit, follow and run memory video jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env", Usage: "dotenv file to load", Value: ".env"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			_ = godotenv.Load(cmd.String("env"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "submit",
				Usage: "submit a job to the api",
				Flags: append([]cli.Flag{
					apiFlag,
					&cli.BoolFlag{Name: "wait", Usage: "poll until the video is ready and print its URL"},
					&cli.DurationFlag{Name: "interval", Value: apiclient.DefaultPollInterval},
					&cli.DurationFlag{Name: "timeout", Usage: "give up waiting after this long", Value: defaultWaitTimeout},
				}, memoryFlags...),
				Action: submitAction,
			},
			{
				Name:  "wait",
				Usage: "poll a job until its video is ready, then print a playback URL",
				Flags: []cli.Flag{
					apiFlag,
					idFlag,
					&cli.DurationFlag{Name: "interval", Value: apiclient.DefaultPollInterval},
					&cli.DurationFlag{Name: "timeout", Value: defaultWaitTimeout},
				},
				Action: waitAction,
			},
			{
				Name:   "url",
				Usage:  "print a time-limited playback URL for a ready job",
				Flags:  []cli.Flag{apiFlag, idFlag},
				Action: urlAction,
			},
			{
				Name:   "run",
				Usage:  "run the whole pipeline in this process using the environment's configuration",
				Flags:  memoryFlags,
				Action: runAction,
			},
			{
				Name:  "sweep",
				Usage: "remove stale job workspaces",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "max-age", Value: defaultSweepAge},
				},
				Action: sweepAction,
			},
		},
	}
}
