// Package errors provides standardized error types for dataset viewing operations.
// This package defines ViewerError for consistent error handling across
// the public service API, with operation context, an error kind drawn from
// a fixed taxonomy, and error wrapping support.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind string

const (
	// KindIO covers missing, unreadable or unwritable files.
	KindIO Kind = "io"
	// KindFormat covers malformed headers, unreadable footers and projection mismatches.
	KindFormat Kind = "format"
	// KindArithmetic covers row counts or slice lengths the engine cannot represent.
	KindArithmetic Kind = "arithmetic"
	// KindValidation covers malformed request inputs such as inconsistent page descriptors.
	KindValidation Kind = "validation"
	// KindTask covers worker failures that indicate an environment problem.
	KindTask Kind = "task"
	// KindState covers operations issued while no dataset is open.
	KindState Kind = "state"
)

// ViewerError represents standardized errors across all viewer operations
type ViewerError struct {
	Op      string // Operation name (e.g., "OpenCSV", "LoadPage", "Convert")
	Kind    Kind   // Failure class
	Path    string // File path if applicable
	Column  string // Column name if applicable
	Message string // Human-readable error description
	Hint    string // Optional remediation hint
	Cause   error  // Underlying error cause
}

// Error implements the error interface
func (e *ViewerError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(" operation failed")
	if e.Column != "" {
		fmt.Fprintf(&sb, " on column '%s'", e.Column)
	}
	if e.Path != "" {
		fmt.Fprintf(&sb, " for %s", e.Path)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	if e.Hint != "" {
		sb.WriteString(" (Hint: ")
		sb.WriteString(e.Hint)
		sb.WriteString(")")
	}
	return sb.String()
}

// Unwrap returns the underlying cause for error wrapping support
func (e *ViewerError) Unwrap() error {
	return e.Cause
}

// Is implements error equality checking for errors.Is().
// A target carrying only a Kind (such as ErrIO) matches every error of that kind.
func (e *ViewerError) Is(target error) bool {
	t, ok := target.(*ViewerError)
	if !ok {
		return false
	}
	if t.Op == "" && t.Message == "" && t.Column == "" && t.Path == "" {
		return e.Kind == t.Kind
	}
	return e.Op == t.Op && e.Kind == t.Kind && e.Column == t.Column && e.Message == t.Message
}

// WithHint returns a copy of the error carrying a remediation hint
func (e *ViewerError) WithHint(hint string) *ViewerError {
	c := *e
	c.Hint = hint
	return &c
}

// Kind sentinels for errors.Is checks
var (
	ErrIO         = &ViewerError{Kind: KindIO}
	ErrFormat     = &ViewerError{Kind: KindFormat}
	ErrArithmetic = &ViewerError{Kind: KindArithmetic}
	ErrValidation = &ViewerError{Kind: KindValidation}
	ErrTask       = &ViewerError{Kind: KindTask}
	ErrState      = &ViewerError{Kind: KindState}
)

// KindOf returns the kind of the first ViewerError in err's chain, or "" if none
func KindOf(err error) Kind {
	var ve *ViewerError
	if stderrors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// Common error constructors for consistent error creation

// NewIOError creates an error for a file that could not be read or written
func NewIOError(op, path string, cause error) *ViewerError {
	return &ViewerError{
		Op:      op,
		Kind:    KindIO,
		Path:    path,
		Message: "i/o failure",
		Cause:   cause,
	}
}

// NewFormatError creates an error for structurally invalid input
func NewFormatError(op, path, message string, cause error) *ViewerError {
	return &ViewerError{
		Op:      op,
		Kind:    KindFormat,
		Path:    path,
		Message: message,
		Cause:   cause,
	}
}

// NewColumnNotFoundError creates an error for projections on non-existent columns
func NewColumnNotFoundError(op, column string) *ViewerError {
	return &ViewerError{
		Op:      op,
		Kind:    KindFormat,
		Column:  column,
		Message: "column does not exist",
	}
}

// NewArithmeticError creates an error for values that overflow the engine's native types
func NewArithmeticError(op, message string) *ViewerError {
	return &ViewerError{
		Op:      op,
		Kind:    KindArithmetic,
		Message: message,
	}
}

// NewValidationError creates an error for input validation failures
func NewValidationError(op, column, message string) *ViewerError {
	return &ViewerError{
		Op:      op,
		Kind:    KindValidation,
		Column:  column,
		Message: message,
	}
}

// NewTaskError creates an error for background worker failures
func NewTaskError(op string, cause error) *ViewerError {
	return &ViewerError{
		Op:      op,
		Kind:    KindTask,
		Message: "internal task failure",
		Cause:   cause,
	}
}

// NewNoDatasetError creates an error for operations that need an open dataset
func NewNoDatasetError(op, format string) *ViewerError {
	return &ViewerError{
		Op:      op,
		Kind:    KindState,
		Message: fmt.Sprintf("no %s file loaded", format),
	}
}
