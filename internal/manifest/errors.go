package manifest

import (
	"errors"
	"fmt"
)

// ValidationError reports a structurally invalid manifest.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s manifest: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s manifest: %s: %s", e.Kind, e.Field, e.Reason)
}

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(kind Kind, field, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Reason: fmt.Sprintf(format, args...)}
}
