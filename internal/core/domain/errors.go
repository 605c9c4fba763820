package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
// Codes follow the format SD-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "SD-FETCH-5020")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Run Errors
// ============================================================================

var (
	// ErrFetch indicates the fetcher could not produce records
	// (network, timeout, page structure).
	ErrFetch = NewDomainError("SD-FETCH-5020", "fetch failed")

	// ErrHash indicates a record could not be fingerprinted. Hashing is total
	// over valid input, so this is a programming defect.
	ErrHash = NewDomainError("SD-HASH-5000", "hash failed")

	// ErrPersist indicates the snapshot store could not write an artifact.
	ErrPersist = NewDomainError("SD-PERSIST-5001", "persist failed")

	// ErrExport indicates an export sink failed (network, auth, quota).
	ErrExport = NewDomainError("SD-EXPORT-5021", "export failed")
)

// ============================================================================
// Configuration and Archive Errors
// ============================================================================

var (
	// ErrConfig indicates invalid or incomplete configuration.
	ErrConfig = NewDomainError("SD-CONF-4000", "invalid configuration")

	// ErrArchiveLocked indicates another run holds the archive lock.
	ErrArchiveLocked = NewDomainError("SD-ARCH-4090", "archive locked by another run")

	// ErrArtifactMalformed indicates an artifact could not be parsed.
	ErrArtifactMalformed = NewDomainError("SD-ARCH-4001", "malformed artifact")

	// ErrRunNotFound indicates the requested run id is not in the archive.
	ErrRunNotFound = NewDomainError("SD-ARCH-4040", "run not found")
)

// RunError records the run and stage at which a run failed.
type RunError struct {
	RunID RunID
	Stage RunState
	Err   error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed in %s: %v", e.RunID, e.Stage, e.Err)
}

// Unwrap returns the stage error.
func (e *RunError) Unwrap() error {
	return e.Err
}

// NewRunError wraps err with run context. A nil err yields nil.
func NewRunError(runID RunID, stage RunState, err error) error {
	if err == nil {
		return nil
	}
	return &RunError{RunID: runID, Stage: stage, Err: err}
}

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (RunState, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re.Stage, true
	}
	return "", false
}
