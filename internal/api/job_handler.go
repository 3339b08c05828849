package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/recap-api/internal/api/shared"
	"github.com/phrazzld/recap-api/internal/domain"
	"github.com/phrazzld/recap-api/internal/platform/logger"
	"github.com/phrazzld/recap-api/internal/service"
)

// JobService is the part of the coordinator the handlers use.
type JobService interface {
	Submit(ctx context.Context, jobType string, input json.RawMessage, forceRefresh bool) (*service.Submission, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	DeleteJob(ctx context.Context, id string) error
	Stats(ctx context.Context) (*service.Stats, error)
}

// JobHandler handles submit, poll, and delete requests
type JobHandler struct {
	jobs   JobService
	logger *slog.Logger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobs JobService, logger *slog.Logger) *JobHandler {
	if jobs == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("job service cannot be nil for JobHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &JobHandler{
		jobs:   jobs,
		logger: logger.With(slog.String("component", "job_handler")),
	}
}

// Submit returns a handler for POST requests that submit jobType.
// It answers 200 with the cached result, the joined job, or the new job.
func (h *JobHandler) Submit(jobType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContextOrDefault(r.Context(), h.logger)

		var req SubmitRequest
		if err := shared.DecodeJSON(r, &req); err != nil {
			log.Debug("invalid request body", slog.String("error", err.Error()))
			if !errors.Is(err, shared.ErrEmptyBody) {
				err = domain.NewValidationError("body", "is not a valid JSON object: "+err.Error(), domain.ErrInvalidFormat)
			}
			HandleAPIError(w, r, err, "")
			return
		}
		if err := shared.ValidateRequest(&req); err != nil {
			HandleAPIError(w, r, errors.Join(domain.ErrValidation, err), "")
			return
		}

		sub, err := h.jobs.Submit(r.Context(), jobType, req.Input, req.ForceRefresh)
		if err != nil {
			HandleAPIError(w, r, err, "Failed to submit job")
			return
		}

		log.Debug("job submitted",
			slog.String("job_id", sub.JobID),
			slog.String("job_type", jobType),
			slog.String("status", string(sub.Status)),
			slog.Bool("cached", sub.Cached))
		shared.RespondWithJSON(w, r, http.StatusOK, submissionToResponse(sub))
	}
}

// GetJob handles GET /jobs/{jobId} requests
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := getPathJobID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// DeleteJob handles DELETE /jobs/{jobId} requests. Deleting a job that does
// not exist succeeds, so clients can retry by deleting and resubmitting.
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := getPathJobID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.jobs.DeleteJob(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to delete job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, DeleteResponse{JobID: id, Deleted: true})
}

// Stats handles GET /stats requests
func (h *JobHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.Stats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get stats")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, statsToResponse(stats))
}

// getPathJobID extracts and validates the jobId path parameter.
// Job IDs are deterministic UUIDs.
func getPathJobID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "jobId")
	if raw == "" {
		return "", domain.NewValidationError("jobId", "is required", domain.ErrInvalidID)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", domain.NewValidationError("jobId", "has invalid format", domain.ErrInvalidID)
	}
	return id.String(), nil
}
