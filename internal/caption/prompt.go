package caption

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// MaxCaptionWords bounds the caption the model is asked to write.
const MaxCaptionWords = 12

// BuildPrompt turns a photo's feeling into the instruction sent alongside the
// photo to the captioning model. locale, when set, pins the caption language.
func BuildPrompt(feeling, locale string) string {
	parts := []string{}
	if f := strings.TrimSpace(feeling); f != "" {
		parts = append(parts, fmt.Sprintf("This photo is a personal memory. The person who took it felt: %q.", f))
	}
	parts = append(parts, fmt.Sprintf("Overlay a short caption of at most %d words that expresses this feeling.", MaxCaptionWords))
	if name := languageName(locale); name != "" {
		parts = append(parts, "Write the caption in "+name+".")
	}
	parts = append(parts,
		"Place the caption where it stays readable, with good contrast against the background.",
		"Preserve the original composition, subjects and lighting of the photo.",
		"Return the edited image.",
	)
	return strings.Join(parts, " ")
}

func languageName(locale string) string {
	if strings.TrimSpace(locale) == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	return display.English.Tags().Name(tag)
}
