package errors

import (
	"fmt"
)

// Error is the structured error type for srcindex.
// It provides context for error handling, logging, and user presentation.
type Error struct {
	// Code is the unique error code (e.g., "ERR_201_PATH_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Pipeline, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Recoverable indicates the caller can degrade instead of aborting.
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with *Error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and the recoverable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Category:    categoryFromCode(code),
		Severity:    severityFromCode(code),
		Cause:       cause,
		Recoverable: isRecoverableCode(code),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code string, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message. Returns nil for nil.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// PathError reports a missing or invalid source root.
func PathError(path string, cause error) *Error {
	return New(ErrCodePathNotFound, fmt.Sprintf("path does not exist: %s", path), cause).
		WithDetail("path", path)
}

// LoadError reports a document that could not be read.
func LoadError(path string, cause error) *Error {
	return New(ErrCodeLoadFailed, fmt.Sprintf("failed to load %s", path), cause).
		WithDetail("path", path)
}

// NoValidPathsError reports that root parsing produced no usable roots.
func NoValidPathsError() *Error {
	return New(ErrCodeNoValidPaths, "no valid paths provided", nil)
}

// NoFilesFoundError reports that scanning found nothing across all roots.
func NoFilesFoundError(ext string) *Error {
	return Newf(ErrCodeNoFilesFound, "no %s files found in any of the specified paths after filtering", ext)
}

// EmptyCorpusError reports that content filtering removed every document.
func EmptyCorpusError() *Error {
	return New(ErrCodeEmptyCorpus, "no documents remained after filtering; check paths and filter rules", nil)
}

// IndexNotFoundError reports a search before any index build.
func IndexNotFoundError(collection string) *Error {
	return Newf(ErrCodeIndexNotFound, "index %q does not exist; run 'srcindex index' first", collection)
}

// IsRecoverable checks if an error allows degradation instead of failure.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Recoverable
	}
	return false
}
