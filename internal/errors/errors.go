// Package errors provides a lightweight structured error type (MirrorError)
// for category-based classification and retry semantics across the sync run.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a wikimirror error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig ErrorCategory = "config"

	// Remote API and network errors
	CategoryRemote ErrorCategory = "remote"

	// Per-reference degradations inside a page
	CategoryAsset ErrorCategory = "asset"
	CategoryLink  ErrorCategory = "link"

	// Post-write audit failures
	CategoryIntegrity ErrorCategory = "integrity"

	// Runtime and infrastructure errors
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the run
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded output
)

// MirrorError is a structured error with category, retryability, and context
type MirrorError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for MirrorError
type ContextFields map[string]any

// Error implements the error interface
func (e *MirrorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *MirrorError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *MirrorError) WithContext(key string, value any) *MirrorError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new MirrorError
func New(category ErrorCategory, severity ErrorSeverity, message string) *MirrorError {
	return &MirrorError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new MirrorError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *MirrorError {
	return &MirrorError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable MirrorError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *MirrorError {
	return &MirrorError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// ConfigError creates a fatal configuration error (pre-flight validation).
func ConfigError(message string) *MirrorError {
	return &MirrorError{
		Category: CategoryConfig,
		Severity: SeverityFatal,
		Message:  message,
	}
}

// IsCategory checks if an error belongs to a specific category, unwrapping as needed
func IsCategory(err error, category ErrorCategory) bool {
	var me *MirrorError
	if stderrors.As(err, &me) {
		return me.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var me *MirrorError
	if stderrors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal otherwise
func GetCategory(err error) ErrorCategory {
	var me *MirrorError
	if stderrors.As(err, &me) {
		return me.Category
	}
	return CategoryInternal
}
