package crm

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for malformed input. Maps to 400.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a mutation collides with the current
	// state of the record. Maps to 409.
	ErrConflict = errors.New("conflict")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
