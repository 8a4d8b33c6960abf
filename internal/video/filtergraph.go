package video

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tomoima525/daily-diary/internal/domain"
)

// Profile is the fixed output encoding.
type Profile struct {
	Width      int
	Height     int
	FPS        int
	VideoCodec string
	PixFmt     string
	CRF        int
	AudioCodec string
}

// DefaultProfile is 1080p H.264 with AAC audio.
func DefaultProfile() Profile {
	return Profile{
		Width:      1920,
		Height:     1080,
		FPS:        30,
		VideoCodec: "libx264",
		PixFmt:     "yuv420p",
		CRF:        23,
		AudioCodec: "aac",
	}
}

// Timing holds the per-frame display and fade durations, in seconds.
type Timing struct {
	FrameDuration float64
	FadeIn        float64
	FadeOut       float64
	AudioFadeOut  float64
}

// DefaultTiming is 3s per frame with half-second fades and a 2s audio tail.
func DefaultTiming() Timing {
	return Timing{FrameDuration: 3, FadeIn: 0.5, FadeOut: 0.5, AudioFadeOut: 2}
}

// Input is one transcoder input declaration.
type Input struct {
	Path string
	Args []string
}

// Graph is the transcoder invocation for one composition.
type Graph struct {
	Inputs     []Input
	Filter     string
	VideoLabel string
	// AudioLabel is empty when the output carries video only.
	AudioLabel string
	Duration   float64
}

// BuildGraph computes the input declarations and filter expression for the
// given frames. audioPath may be empty, in which case the graph has no audio
// stage. It performs no I/O.
func BuildGraph(framePaths []string, audioPath string, timing Timing, profile Profile) (Graph, error) {
	n := len(framePaths)
	if n == 0 {
		return Graph{}, domain.ErrNoFrames
	}
	if timing.FrameDuration <= 0 {
		return Graph{}, fmt.Errorf("video: frame duration must be positive")
	}
	if profile.Width <= 0 || profile.Height <= 0 {
		return Graph{}, fmt.Errorf("video: invalid canvas %dx%d", profile.Width, profile.Height)
	}

	d := timing.FrameDuration
	total := float64(n) * d
	g := Graph{VideoLabel: "[outv]", Duration: total}

	chains := make([]string, 0, n+2)
	labels := make([]string, 0, n)
	for i, path := range framePaths {
		g.Inputs = append(g.Inputs, Input{
			Path: path,
			Args: []string{"-loop", "1", "-t", seconds(d), "-i", path},
		})
		label := fmt.Sprintf("[v%d]", i)
		chains = append(chains, fmt.Sprintf("[%d:v]%s%s", i, strings.Join(frameFilters(i, n, timing, profile), ","), label))
		labels = append(labels, label)
	}
	chains = append(chains, fmt.Sprintf("%sconcat=n=%d:v=1:a=0%s", strings.Join(labels, ""), n, g.VideoLabel))

	if audioPath != "" {
		g.Inputs = append(g.Inputs, Input{
			Path: audioPath,
			Args: []string{"-stream_loop", "-1", "-i", audioPath},
		})
		g.AudioLabel = "[outa]"
		chains = append(chains, fmt.Sprintf("[%d:a]%s%s", n, strings.Join(audioFilters(total, timing.AudioFadeOut), ","), g.AudioLabel))
	}

	g.Filter = strings.Join(chains, ";")
	return g, nil
}

// frameFilters normalizes a frame onto the canvas and applies its fades.
// The first frame only fades out, the last (when there are several) only
// fades in, and interior frames do both.
func frameFilters(i, n int, timing Timing, profile Profile) []string {
	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", profile.Width, profile.Height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", profile.Width, profile.Height),
		"setsar=1",
	}
	if profile.PixFmt != "" {
		filters = append(filters, "format="+profile.PixFmt)
	}

	d := timing.FrameDuration
	fadeIn := i > 0
	fadeOut := i < n-1 || n == 1
	if fadeIn && timing.FadeIn > 0 {
		filters = append(filters, fmt.Sprintf("fade=t=in:st=0:d=%s", seconds(min(timing.FadeIn, d))))
	}
	if fadeOut && timing.FadeOut > 0 {
		fo := min(timing.FadeOut, d)
		filters = append(filters, fmt.Sprintf("fade=t=out:st=%s:d=%s", seconds(d-fo), seconds(fo)))
	}
	return filters
}

// audioFilters trims the looped bed to total and fades it out so the fade
// ends exactly at total.
func audioFilters(total, fadeWindow float64) []string {
	filters := []string{
		fmt.Sprintf("atrim=0:%s", seconds(total)),
		"asetpts=PTS-STARTPTS",
	}
	if fadeWindow > 0 {
		w := min(fadeWindow, total)
		filters = append(filters, fmt.Sprintf("afade=t=out:st=%s:d=%s", seconds(total-w), seconds(w)))
	}
	return filters
}

// Args assembles the full transcoder argument list writing to output.
func (g Graph) Args(profile Profile, output string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, in := range g.Inputs {
		args = append(args, in.Args...)
	}
	args = append(args, "-filter_complex", g.Filter, "-map", g.VideoLabel)
	if g.AudioLabel != "" {
		args = append(args, "-map", g.AudioLabel)
	}
	args = append(args,
		"-c:v", profile.VideoCodec,
		"-crf", strconv.Itoa(profile.CRF),
		"-pix_fmt", profile.PixFmt,
		"-r", strconv.Itoa(profile.FPS),
	)
	if g.AudioLabel != "" {
		args = append(args, "-c:a", profile.AudioCodec, "-b:a", "192k")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-t", seconds(g.Duration), "-movflags", "+faststart", output)
	return args
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
