// Package apperr defines the error taxonomy shared by the piece engines.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrSchema         = errors.New("invalid schema")
	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrValidation     = errors.New("validation failed")
	ErrUnknownField   = errors.New("unknown field")
	ErrRequiredField  = errors.New("required field")
	ErrFetch          = errors.New("fetch failed")
)

// FieldError is a single constraint violation on a frontmatter field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationError aggregates every field violation found in a document.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.String()
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Messages returns the per-field messages in "field: constraint" form.
func (e *ValidationError) Messages() []string {
	out := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		out[i] = fe.String()
	}
	return out
}

// FieldOpError reports misuse of a field operation (unknown or required field).
type FieldOpError struct {
	Kind  error
	Type  string
	Field string
}

func (e *FieldOpError) Error() string {
	return fmt.Sprintf("%s: %s %q", e.Type, e.Kind, e.Field)
}

func (e *FieldOpError) Unwrap() error { return e.Kind }

// UnknownField returns an error for a field that the schema does not declare.
func UnknownField(pieceType, field string) error {
	return &FieldOpError{Kind: ErrUnknownField, Type: pieceType, Field: field}
}

// RequiredField returns an error for an attempt to clear a non-nullable field.
func RequiredField(pieceType, field string) error {
	return &FieldOpError{Kind: ErrRequiredField, Type: pieceType, Field: field}
}

// FetchError describes a failed attachment download.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFetch, e.Err}
	}
	return []error{ErrFetch}
}

// SchemaErrorf returns an ErrSchema-wrapping error with a formatted message.
func SchemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchema, fmt.Sprintf(format, args...))
}
