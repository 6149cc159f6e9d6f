// Package api serves the preview server HTTP API backed by a job store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"preview/internal/apperrors"
	"preview/internal/health"
	"preview/internal/preview"
	"preview/internal/stubserver"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// JobStore is the backend the handlers serve.
type JobStore interface {
	Status() *preview.ServerStatus
	Create(ctx context.Context, job *preview.PreviewJob) (*preview.PreviewJob, error)
	Get(ctx context.Context, id string) (*preview.PreviewJob, error)
	Cancel(ctx context.Context, id string) (*preview.PreviewJob, error)
	File(ctx context.Context, id string, archive bool) (*stubserver.File, error)
}

// Verify the simulated store implements JobStore
var _ JobStore = (*stubserver.Store)(nil)

// Handler contains HTTP handlers for the preview API
type Handler struct {
	store  JobStore
	health *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(store JobStore, healthChecker *health.Checker) *Handler {
	return &Handler{
		store:  store,
		health: healthChecker,
	}
}

// Status handles GET /api/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.Status())
}

// CreateJob handles POST /api/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	job, err := preview.DecodeJob(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	created, err := h.store.Create(r.Context(), job)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Location", r.URL.JoinPath(created.ID).Path)
	h.writeJSON(w, http.StatusCreated, created)
}

// GetJob handles GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /api/jobs/{id}
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	job, err := h.store.Cancel(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, job)
}

// GetFile handles GET /api/jobs/{id}/file?archive=bool
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	archive := false
	if raw := r.URL.Query().Get("archive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.handleError(w, r, apperrors.Validation("archive", "archive must be true or false"))
			return
		}
		archive = v
	}

	file, err := h.store.File(r.Context(), id, archive)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Data); err != nil {
		slog.Warn("Failed to write preview file", "jobId", id, "error", err)
	}
}

// Livez handles GET /livez - liveness probe.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.health.Liveness(r.Context()))
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 once the store stops accepting jobs or the server is draining.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps store errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}

	body := map[string]string{"error": err.Error()}
	var ae *apperrors.Error
	if errors.As(err, &ae) && ae.Field != "" {
		body["field"] = ae.Field
	}
	h.writeJSON(w, status, body)
}
