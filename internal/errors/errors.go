package errors

import (
	"fmt"
)

// RepoVecError is the structured error type for repovec.
// It provides rich context for error handling, logging, and user presentation.
type RepoVecError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Remote, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RepoVecError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RepoVecError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RepoVecError.
func (e *RepoVecError) Is(target error) bool {
	if t, ok := target.(*RepoVecError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RepoVecError) WithDetail(key, value string) *RepoVecError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *RepoVecError) WithSuggestion(suggestion string) *RepoVecError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RepoVecError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RepoVecError {
	return &RepoVecError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RepoVecError from an existing error.
// The error's message becomes the RepoVecError message.
func Wrap(code string, err error) *RepoVecError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RepoVecError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *RepoVecError {
	return New(ErrCodeFileNotFound, message, cause)
}

// RemoteError creates a remote-service error.
// Remote errors are typically retryable.
func RemoteError(message string, cause error) *RepoVecError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RepoVecError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RepoVecError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a RepoVecError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RepoVecError); ok {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RepoVecError); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a RepoVecError.
// Returns empty string if not a RepoVecError.
func GetCode(err error) string {
	if re, ok := err.(*RepoVecError); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RepoVecError.
// Returns empty string if not a RepoVecError.
func GetCategory(err error) Category {
	if re, ok := err.(*RepoVecError); ok {
		return re.Category
	}
	return ""
}
