package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// PhotoMemory is one input photo plus the feeling the user attached to it.
// JSON tags follow the submission wire format.
type PhotoMemory struct {
	Name          string `json:"photo_name"`
	SourceLocator string `json:"photo_url"`
	Feeling       string `json:"feelings"`
}

// Job is one request to turn an ordered list of photo memories into a video.
// It is immutable once dispatched.
type Job struct {
	ID        string        `json:"requestId"`
	Memories  []PhotoMemory `json:"photo_memories"`
	// Locale is an optional BCP 47 tag for the caption language.
	Locale    string        `json:"locale,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// NewJob validates the memories and mints a fresh job identifier.
func NewJob(memories []PhotoMemory, now time.Time) (Job, error) {
	normalized := NormalizeMemories(memories)
	if err := ValidateMemories(normalized); err != nil {
		return Job{}, err
	}
	return Job{
		ID:        uuid.NewString(),
		Memories:  normalized,
		CreatedAt: now.UTC(),
	}, nil
}

// WithLocale returns a copy of the job captioned in locale. An empty locale
// leaves the caption language to the model.
func (j Job) WithLocale(locale string) (Job, error) {
	tag, err := NormalizeLocale(locale)
	if err != nil {
		return Job{}, err
	}
	j.Locale = tag
	return j, nil
}

// Validate checks a job received over the wire (for example by the worker).
func (j Job) Validate() error {
	if _, err := ParseJobID(j.ID); err != nil {
		return err
	}
	if _, err := NormalizeLocale(j.Locale); err != nil {
		return err
	}
	return ValidateMemories(j.Memories)
}

// NormalizeLocale canonicalizes a BCP 47 tag. Empty input is allowed.
func NormalizeLocale(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", invalid("locale", "invalid locale %q", raw)
	}
	return tag.String(), nil
}

// NormalizeMemories trims surrounding whitespace and converts every text
// field to Unicode NFC so names derived from them are stable.
func NormalizeMemories(memories []PhotoMemory) []PhotoMemory {
	if memories == nil {
		return nil
	}
	out := make([]PhotoMemory, len(memories))
	for i, m := range memories {
		out[i] = PhotoMemory{
			Name:          normalizeText(m.Name),
			SourceLocator: strings.TrimSpace(m.SourceLocator),
			Feeling:       normalizeText(m.Feeling),
		}
	}
	return out
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ValidateMemories enforces that the list is non-empty, every field is set,
// and names are unique within the job.
func ValidateMemories(memories []PhotoMemory) error {
	if memories == nil {
		return invalid("photo_memories", "photo_memories is required")
	}
	if len(memories) == 0 {
		return invalid("photo_memories", "at least one photo memory is required")
	}
	seen := make(map[string]int, len(memories))
	for i, m := range memories {
		field := fmt.Sprintf("photo_memories[%d]", i)
		switch {
		case strings.TrimSpace(m.Name) == "":
			return invalid(field+".photo_name", "photo_name is required")
		case strings.TrimSpace(m.SourceLocator) == "":
			return invalid(field+".photo_url", "photo_url is required")
		case strings.TrimSpace(m.Feeling) == "":
			return invalid(field+".feelings", "feelings is required")
		}
		if prev, ok := seen[m.Name]; ok {
			return invalid(field+".photo_name", "duplicate photo_name %q (also at index %d)", m.Name, prev)
		}
		seen[m.Name] = i
	}
	return nil
}

// ParseJobID accepts only well-formed UUIDs and returns the canonical form.
func ParseJobID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", invalid("requestId", "invalid request id format")
	}
	return id.String(), nil
}
