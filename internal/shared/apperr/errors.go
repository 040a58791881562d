// Package apperr holds the error types shared by the chat pipeline.
package apperr

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded is the billing signal raised by the usage gate. It is kept
// distinct from provider failures so callers can show an upgrade message.
var ErrQuotaExceeded = errors.New("usage quota exceeded")

// ValidationError reports bad caller input detected before any provider call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ProviderError wraps a failure or timeout from an upstream AI provider.
type ProviderError struct {
	Provider  string
	Operation string
	Timeout   bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "failed"
	if e.Timeout {
		kind = "timed out"
	}
	return fmt.Sprintf("%s %s %s: %v", e.Provider, e.Operation, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsProvider reports whether err is or wraps a ProviderError.
func IsProvider(err error) bool {
	var p *ProviderError
	return errors.As(err, &p)
}
