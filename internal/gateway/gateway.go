// Package gateway is the client side of the preview server API.
package gateway

import (
	"context"
	"fmt"
	"preview/internal/preview"
)

// Gateway exposes the remote operations the workflow needs.
// Implementations must be safe for concurrent use by multiple workflows
// and own no per-job state.
//
// Failures are reported with the apperrors kind of the operation:
//   - CheckServerStatus: apperrors.ErrConnectivity
//   - CreateJob:         apperrors.ErrSubmission
//   - GetJob:            apperrors.ErrPoll
//   - GetFile:           apperrors.ErrDownload
type Gateway interface {
	// CheckServerStatus probes the server for availability and version.
	CheckServerStatus(ctx context.Context) (*preview.ServerStatus, error)

	// CreateJob submits an unsubmitted job and returns the server's copy,
	// which carries the assigned identifier.
	CreateJob(ctx context.Context, job *preview.PreviewJob) (*preview.PreviewJob, error)

	// GetJob fetches the latest snapshot of a job.
	GetJob(ctx context.Context, id string) (*preview.PreviewJob, error)

	// GetFile downloads the job's rendered output, either the single preview
	// file or the full typesetting archive.
	GetFile(ctx context.Context, job *preview.PreviewJob, wantArchive bool) (*preview.Artifact, error)
}

// StatusError is a non-success HTTP response from the preview server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// IsClientError returns true for 4xx responses.
func IsClientError(err error) bool {
	if se, ok := err.(*StatusError); ok {
		return se.StatusCode >= 400 && se.StatusCode < 500
	}
	return false
}
