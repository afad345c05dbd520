// Package common defines shared sentinel errors and small helpers used across
// the certkeeper server, CLI and core packages. Callers should use errors.Is
// to match these values.
package common

import (
	"errors"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid, malformed or expired caller token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ValidationError carries field-level details for malformed input.
// errors.Is(err, ErrorValidation) holds for every ValidationError.
type ValidationError struct {
	Details []string
}

// NewValidationError builds a ValidationError from one or more messages.
func NewValidationError(details ...string) *ValidationError {
	return &ValidationError{Details: details}
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return ErrorValidation.Error()
	}
	return ErrorValidation.Error() + ": " + strings.Join(e.Details, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrorValidation
}
