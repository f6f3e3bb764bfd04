package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFetch marks failures retrieving or parsing source content.
	ErrFetch = errors.New("content fetch error")
	// ErrGeneration marks failures from the text generation service.
	ErrGeneration = errors.New("generation error")
	// ErrSynthesis marks failures from the speech synthesis service.
	ErrSynthesis = errors.New("synthesis error")
	// ErrValidation marks malformed responses or invalid pipeline data.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or unusable service configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks failures with no more specific classification.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes step context while tagging it with
// the provided marker for later retry classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, step, operation, message string, err error) error {
	detail := buildDetail(step, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether an error represents a transient external failure
// that may succeed on a fresh attempt. Validation and configuration errors are
// contract violations and never retry.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return false
	default:
		return true
	}
}

func buildDetail(step, operation, message string) string {
	parts := make([]string, 0, 3)
	if step = strings.TrimSpace(step); step != "" {
		parts = append(parts, step)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Details extracts the human-readable portion of a wrapped service error.
type ErrorDetails struct {
	Message string
}

// Details returns presentation details for an error, trimming sentinel prefixes.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	message := err.Error()
	for _, marker := range []error{ErrFetch, ErrGeneration, ErrSynthesis, ErrValidation, ErrConfiguration, ErrTransient} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(message, prefix) {
			message = strings.TrimPrefix(message, prefix)
			break
		}
	}
	return ErrorDetails{Message: message}
}
