// Package apperrors defines the typed error kinds propagated by the scan
// pipeline, pattern library, and result store, per the error handling
// design: request-validation errors fail synchronously, per-file and
// per-pattern errors are captured and the scan continues, and storage
// errors retry before failing the job.
package apperrors

import (
	"fmt"
	"time"
)

// Kind enumerates the error kinds a scan can produce.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid_request"
	KindRepoFetchFailed    Kind = "repo_fetch_failed"
	KindRepoTooLarge       Kind = "repo_too_large"
	KindInvalidPattern     Kind = "invalid_pattern"
	KindPatternLibraryLoad Kind = "pattern_library_load"
	KindFileReadError      Kind = "file_read_error"
	KindFileTooLarge       Kind = "file_too_large"
	KindDeadlineExceeded   Kind = "deadline_exceeded"
	KindCancelled          Kind = "cancelled"
	KindCollectorFailed    Kind = "collector_failed"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindInternal           Kind = "internal"
)

// GateError is the error type carried on a ScanJob's error list and
// returned from any operation that fails with a recognized kind.
type GateError struct {
	Kind        Kind
	Operation   string
	FilePath    string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

// New creates a GateError with the given kind and operation context.
func New(kind Kind, op string, err error) *GateError {
	return &GateError{
		Kind:       kind,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithFile attaches the file path the error occurred on.
func (e *GateError) WithFile(path string) *GateError {
	e.FilePath = path
	return e
}

// WithRecoverable marks whether the scan can continue past this error.
func (e *GateError) WithRecoverable(recoverable bool) *GateError {
	e.Recoverable = recoverable
	return e
}

// Error implements the error interface.
func (e *GateError) Error() string {
	if e.FilePath != "" {
		return fmt.Sprintf("%s %s failed for %s: %v", e.Kind, e.Operation, e.FilePath, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Kind, e.Operation, e.Underlying)
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (e *GateError) Unwrap() error {
	return e.Underlying
}

// IsRecoverable reports whether the scan should continue despite this error.
func (e *GateError) IsRecoverable() bool {
	return e.Recoverable
}

// Fatal kinds abort the job outright rather than being recorded and
// continued past. Everything else is recoverable by default.
func (k Kind) Fatal() bool {
	switch k {
	case KindRepoFetchFailed, KindRepoTooLarge, KindPatternLibraryLoad, KindInvalidRequest:
		return true
	default:
		return false
	}
}
