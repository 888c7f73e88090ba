package core

import (
	"strings"

	"github.com/pkg/errors"
)

// FieldError ties a user-displayable message to one input field, keyed by
// the field's JSON name so API clients can attach it to the right form input.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is the portal's bad-input error: either a request-level
// failure (Err) or a set of per-field messages, or both. The API layer
// renders it as a 400 with a field→message map.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is shorthand for a ValidationError carrying a single
// field message and no request-level error.
func NewFieldError(field, msg string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	if len(err.Fields) > 0 {
		parts := make([]string, len(err.Fields))
		for i, fld := range err.Fields {
			parts[i] = fld.Field + ": " + fld.Error
		}
		return strings.Join(parts, "; ")
	}
	return "invalid input"
}

// shutdown signals an integrity problem the API server cannot recover from;
// the HTTP error handler turns it into a graceful stop.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
