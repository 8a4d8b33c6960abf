package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidJob       = errors.New("invalid job")
	ErrNoFrames         = errors.New("no frames to compose")
	ErrCaptionEmpty     = errors.New("captioning service returned no image")
	ErrTranscoderFailed = errors.New("transcoder failed")
)

// ValidationError reports a malformed job submission. Field names use the
// wire names so the message can be returned to the caller verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is lets callers match any validation failure with errors.Is(err, ErrInvalidJob).
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidJob
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
