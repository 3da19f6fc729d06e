// Package errors provides custom error types for the fieldmap system.
// These errors enable programmatic error checking and make the
// fatal/non-fatal propagation policy explicit: configuration problems and
// invariant violations abort a job, while per-assignment problems are
// recorded in the audit trail and the job continues.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the fieldmap system
var (
	// ErrNotFound indicates that a requested cell, sheet, or field was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrOracleUnavailable indicates that the refinement oracle could not be reached
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrInternal indicates a broken internal invariant rather than bad input data
	ErrInternal = errors.New("internal consistency error")
)

// ConfigError represents a configuration error: a malformed mapping rule,
// an unknown method or transformation tag, or a reference to a nonexistent
// sheet or column. ConfigErrors are fatal and abort the job before
// execution begins.
type ConfigError struct {
	Component string
	Row       int // rule table row number, 0 when not row-specific
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("configuration error in %s (row %d): %s", e.Component, e.Row, e.Message)
	}
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// SourceNotFoundError indicates that a committed assignment's source cell
// could not be read. The affected assignment fails; the job continues.
type SourceNotFoundError struct {
	Sheet string
	Row   int
	Col   int
	Err   error
}

// Error implements the error interface
func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source cell %s!R%dC%d could not be read", e.Sheet, e.Row, e.Col)
}

// Unwrap implements errors.Unwrap
func (e *SourceNotFoundError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *SourceNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransformationError indicates that a transformation could not produce a
// destination value, e.g. a sum whose components are all missing or a
// non-numeric value fed into a percentage copy. The affected assignment
// fails; the job continues.
type TransformationError struct {
	Transformation string
	Field          string
	Message        string
	Err            error
}

// Error implements the error interface
func (e *TransformationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("transformation %s failed for %s: %s", e.Transformation, e.Field, e.Message)
	}
	return fmt.Sprintf("transformation %s failed: %s", e.Transformation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *TransformationError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure on input data
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// InternalError indicates a broken invariant, such as the executor
// observing a source field in two committed assignments. It always aborts
// the job: it signals a bug, not bad input data.
type InternalError struct {
	Invariant string
	Message   string
}

// Error implements the error interface
func (e *InternalError) Error() string {
	return fmt.Sprintf("internal consistency error (%s): %s", e.Invariant, e.Message)
}

// Is implements errors.Is support
func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

// TimeoutError represents an operation timeout
type TimeoutError struct {
	Operation string
	Duration  string
	Message   string
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	if e.Duration != "" {
		return fmt.Sprintf("operation %s timed out after %s: %s", e.Operation, e.Duration, e.Message)
	}
	return fmt.Sprintf("operation %s timed out: %s", e.Operation, e.Message)
}

// Is implements errors.Is support
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IOError represents an error during workbook I/O operations
type IOError struct {
	Operation string // "read", "write", "open", "save"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// OracleError represents an error from the refinement oracle
type OracleError struct {
	Provider string
	Message  string
	Err      error
}

// Error implements the error interface
func (e *OracleError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("oracle error from %s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("oracle error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *OracleError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *OracleError) Is(target error) bool {
	return target == ErrOracleUnavailable
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsInternal checks if an error indicates a broken invariant
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

// IsConfig checks if an error is a configuration error
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsFatal reports whether an error must abort the whole job. Only
// configuration-level and invariant-violation errors are fatal; everything
// else is recorded per assignment.
func IsFatal(err error) bool {
	return IsConfig(err) || IsInternal(err)
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}
