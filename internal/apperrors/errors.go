// Package apperrors provides structured application errors for the preview
// workflow, classified by sentinel via errors.Is().
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrInternal   = errors.New("internal error")

	// Workflow failure kinds. Each maps to one user-facing message category.
	ErrConnectivity = errors.New("server unavailable")
	ErrSubmission   = errors.New("job submission failed")
	ErrPoll         = errors.New("job status check failed")
	ErrRemoteJob    = errors.New("preview job failed on server")
	ErrDownload     = errors.New("preview download failed")
	ErrTimeout      = errors.New("preview job timed out")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "bookFormat")
	Resource string // For not found/conflict (e.g., "project")
	Op       string // Operation that failed (e.g., "gateway.getJob")
	Cause    error  // Underlying error

	JobID         string // Server-assigned job id, if a job exists
	LastState     string // Last job state observed before the failure
	ServerMessage string // Message attached to the server's Error state
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel and the cause so errors.Is() matches either.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, id, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Connectivity reports that the pre-flight server probe failed.
func Connectivity(cause error) error {
	return &Error{
		Sentinel: ErrConnectivity,
		Message:  fmt.Sprintf("server unavailable: %v", cause),
		Op:       "gateway.checkServerStatus",
		Cause:    cause,
	}
}

// Submission reports that a job could not be created.
func Submission(cause error) error {
	return &Error{
		Sentinel: ErrSubmission,
		Message:  fmt.Sprintf("job submission failed: %v", cause),
		Op:       "gateway.createJob",
		Cause:    cause,
	}
}

// Poll reports that fetching a job snapshot failed.
func Poll(jobID, lastState string, cause error) error {
	return &Error{
		Sentinel:  ErrPoll,
		Message:   fmt.Sprintf("job %s status check failed: %v", jobID, cause),
		Op:        "gateway.getJob",
		Cause:     cause,
		JobID:     jobID,
		LastState: lastState,
	}
}

// RemoteJob reports that the server finished the job in an error state.
func RemoteJob(jobID, lastState, serverMessage string) error {
	msg := fmt.Sprintf("job %s failed on server", jobID)
	if serverMessage != "" {
		msg += ": " + serverMessage
	}
	return &Error{
		Sentinel:      ErrRemoteJob,
		Message:       msg,
		JobID:         jobID,
		LastState:     lastState,
		ServerMessage: serverMessage,
	}
}

// Download reports that the artifact of a successful job could not be retrieved.
func Download(jobID string, cause error) error {
	return &Error{
		Sentinel:  ErrDownload,
		Message:   fmt.Sprintf("job %s preview download failed: %v", jobID, cause),
		Op:        "gateway.getFile",
		Cause:     cause,
		JobID:     jobID,
		LastState: "PreviewGenerated",
	}
}

// Timeout reports that the poll budget ran out before a terminal state.
func Timeout(jobID, lastState string, elapsed time.Duration, polls int) error {
	return &Error{
		Sentinel:  ErrTimeout,
		Message:   fmt.Sprintf("job %s did not finish after %s (%d polls)", jobID, elapsed.Round(time.Second), polls),
		JobID:     jobID,
		LastState: lastState,
	}
}

// Kind returns a short, stable label for the error's category.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.Is(err, ErrSubmission):
		return "submission"
	case errors.Is(err, ErrPoll):
		return "poll"
	case errors.Is(err, ErrRemoteJob):
		return "remote_job"
	case errors.Is(err, ErrDownload):
		return "download"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
