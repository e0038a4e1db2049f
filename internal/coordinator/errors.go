package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrDeactivated is returned by operations on a closed coordinator
	ErrDeactivated = errors.New("coordinator deactivated")
)

// ValidationError reports a missing or invalid required field on a
// notification operation. It indicates a caller defect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func required(field string) error {
	return &ValidationError{Field: field, Message: "is required"}
}
