package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/infra"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// ComposeRequest describes one composition.
type ComposeRequest struct {
	JobID      string
	FramePaths []string
	// AudioPath is optional; empty produces a video-only output.
	AudioPath  string
	OutputPath string
}

// Composer drives the ffmpeg binary.
type Composer struct {
	binary  string
	timing  Timing
	profile Profile
	logger  infra.Logger
	run     commandRunner
}

// NewComposer builds a composer. An empty binary resolves "ffmpeg" from PATH.
func NewComposer(binary string, timing Timing, profile Profile, logger infra.Logger) *Composer {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Composer{
		binary:  binary,
		timing:  timing,
		profile: profile,
		logger:  logger,
		run:     defaultCommandRunner,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (c *Composer) WithCommandRunner(r commandRunner) {
	if c != nil && r != nil {
		c.run = r
	}
}

// CheckAvailable verifies the transcoder binary can be executed.
func (c *Composer) CheckAvailable(ctx context.Context) error {
	if err := c.run(ctx, c.binary, "-hide_banner", "-version"); err != nil {
		return fmt.Errorf("video: %s unavailable: %w", c.binary, err)
	}
	return nil
}

// Compose renders the frames (and optional audio bed) into req.OutputPath.
// Success means the transcoder exited zero and left a non-empty file.
func (c *Composer) Compose(ctx context.Context, req ComposeRequest) (string, error) {
	if strings.TrimSpace(req.OutputPath) == "" {
		return "", errors.New("video: output path is required")
	}
	graph, err := BuildGraph(req.FramePaths, req.AudioPath, c.timing, c.profile)
	if err != nil {
		return "", err
	}
	args := graph.Args(c.profile, req.OutputPath)

	c.logger.Debug().
		Str("job_id", req.JobID).
		Int("frames", len(req.FramePaths)).
		Bool("audio", graph.AudioLabel != "").
		Str("filter", graph.Filter).
		Msg("video: invoking transcoder")

	started := time.Now()
	if err := c.run(ctx, c.binary, args...); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscoderFailed, err)
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return "", fmt.Errorf("%w: output missing: %v", domain.ErrTranscoderFailed, err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%w: output is empty", domain.ErrTranscoderFailed)
	}

	c.logger.Info().
		Str("job_id", req.JobID).
		Float64("duration_seconds", graph.Duration).
		Str("size", humanize.Bytes(uint64(info.Size()))).
		Dur("elapsed", time.Since(started)).
		Msg("video: composed")
	return req.OutputPath, nil
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
