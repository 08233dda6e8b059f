package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures of external capabilities (network, auth,
	// rate limits) that are expected to clear on their own.
	ErrTransient = errors.New("transient failure")
	// ErrValidation marks inputs that can never succeed without change.
	ErrValidation = errors.New("validation error")
	// ErrResource marks local resource failures (disk, crashed tool) worth a
	// small number of retries.
	ErrResource = errors.New("resource error")
	// ErrSizeConstraint marks artifacts that could not be fit under the
	// output size ceiling after all re-encode attempts.
	ErrSizeConstraint = errors.New("size constraint violated")
	// ErrConfiguration marks missing or inconsistent operator configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks lookups for records or files that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks operations cut short by a deadline.
	ErrTimeout = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a stage failure should be retried in place with
// backoff. Validation, size-constraint, and configuration failures can never
// succeed without operator action, so they fail the job immediately.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrSizeConstraint),
		errors.Is(err, ErrConfiguration):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// Kind returns a short classification label for logging.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrSizeConstraint):
		return "size_constraint"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrResource):
		return "resource"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unclassified"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
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
