package caption

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"

	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/providers/genai"
)

// ImageEditor is the captioning service contract: one photo and a prompt in,
// zero or more images out.
type ImageEditor interface {
	EditImage(ctx context.Context, req genai.ImageEditRequest) ([]genai.ImageAsset, error)
}

// SourceFetcher resolves a source locator to image bytes.
type SourceFetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, string, error)
}

// Frame is a generated, captioned image written to the job workspace.
type Frame struct {
	Index int
	Name  string
	Path  string
	// Extras holds any additional images the model returned for the same photo.
	Extras []string
}

// Captioner renders each photo memory into a captioned frame.
type Captioner struct {
	editor  ImageEditor
	fetcher SourceFetcher
	logger  infra.Logger
}

// NewCaptioner wires the captioning service and source fetcher together.
func NewCaptioner(editor ImageEditor, fetcher SourceFetcher, logger infra.Logger) *Captioner {
	return &Captioner{editor: editor, fetcher: fetcher, logger: logger}
}

// CaptionAll processes the job's memories one at a time in list order and
// writes the resulting frames into dir. The returned frames are in input
// order. Any failure, including a photo for which the service returned no
// image, aborts the whole job.
func (c *Captioner) CaptionAll(ctx context.Context, job domain.Job, dir string) ([]Frame, error) {
	if len(job.Memories) == 0 {
		return nil, domain.ErrNoFrames
	}
	frames := make([]Frame, 0, len(job.Memories))
	for i, memory := range job.Memories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := c.captionOne(ctx, job, i, memory, dir)
		if err != nil {
			return nil, fmt.Errorf("caption %q: %w", memory.Name, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (c *Captioner) captionOne(ctx context.Context, job domain.Job, index int, memory domain.PhotoMemory, dir string) (Frame, error) {
	source, mime, err := c.fetcher.Fetch(ctx, memory.SourceLocator)
	if err != nil {
		return Frame{}, err
	}
	c.logger.Debug().
		Str("job_id", job.ID).
		Int("index", index).
		Str("photo", memory.Name).
		Str("size", humanize.Bytes(uint64(len(source)))).
		Msg("caption: fetched source photo")

	images, err := c.editor.EditImage(ctx, genai.ImageEditRequest{
		Prompt:    BuildPrompt(memory.Feeling, job.Locale),
		Image:     source,
		MimeType:  mime,
		RequestID: job.ID,
	})
	if err != nil {
		return Frame{}, err
	}
	if len(images) == 0 {
		return Frame{}, domain.ErrCaptionEmpty
	}

	base := fmt.Sprintf("%03d_%s", index, safeName(memory.Name))
	frame := Frame{Index: index, Name: memory.Name}
	for n, img := range images {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		path := filepath.Join(dir, name+extensionFor(img.MimeType))
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return Frame{}, fmt.Errorf("write frame: %w", err)
		}
		if n == 0 {
			frame.Path = path
		} else {
			frame.Extras = append(frame.Extras, path)
		}
	}
	if len(frame.Extras) > 0 {
		c.logger.Info().
			Str("job_id", job.ID).
			Str("photo", memory.Name).
			Int("images", len(images)).
			Msg("caption: model returned several images, using the first as the frame")
	}
	return frame, nil
}

// safeName maps a photo name onto a filesystem-safe stem.
func safeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "photo"
	}
	if runes := []rune(out); len(runes) > 64 {
		out = string(runes[:64])
	}
	return out
}

func extensionFor(mime string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mime, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
