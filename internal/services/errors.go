package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers used to classify failures of external collaborators.
// Transient failures stay eligible for retry; the rest either end the unit
// (permanent, validation, not found) or describe the failure mode (timeout,
// which is retried by default).
var (
	ErrTransient     = errors.New("transient failure")
	ErrPermanent     = errors.New("permanent failure")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above; nil defaults to ErrTransient.
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

// IsPermanent reports whether a unit failure should skip further automatic
// retries. Validation and not-found conditions never recover on their own.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound)
}

// Key returns the machine-readable error key recorded in the unit store and
// the manifest for a classified failure.
func Key(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermanent):
		return "permanent_error"
	default:
		return "transient_error"
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
