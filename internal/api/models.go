package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/recap-api/internal/domain"
	"github.com/phrazzld/recap-api/internal/service"
)

// SubmitRequest is the body of POST /recap, /parse, and /triggers.
type SubmitRequest struct {
	// Input is the job input, checked against the job type's input schema.
	Input json.RawMessage `json:"input" validate:"required"`
	// ForceRefresh skips the cache and replaces a finished job.
	ForceRefresh bool `json:"forceRefresh"`
}

// SubmitResponse is the immediate answer to a submit.
type SubmitResponse struct {
	JobID        string          `json:"jobId"`
	Status       string          `json:"status"`
	Phase        string          `json:"phase"`
	PhaseMessage string          `json:"phaseMessage"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	Cached       bool            `json:"cached"`
}

// JobResponse is the body of GET /jobs/{jobId}.
type JobResponse struct {
	JobID        string          `json:"jobId"`
	JobType      string          `json:"jobType"`
	Status       string          `json:"status"`
	Phase        string          `json:"phase"`
	PhaseMessage string          `json:"phaseMessage"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// DeleteResponse is the body of DELETE /jobs/{jobId}.
type DeleteResponse struct {
	JobID   string `json:"jobId"`
	Deleted bool   `json:"deleted"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Results map[string]int64 `json:"results"`
	Jobs    map[string]int64 `json:"jobs"`
}

func submissionToResponse(sub *service.Submission) SubmitResponse {
	return SubmitResponse{
		JobID:        sub.JobID,
		Status:       string(sub.Status),
		Phase:        string(sub.Phase),
		PhaseMessage: sub.PhaseMessage,
		Result:       sub.Result,
		Error:        sub.Error,
		Cached:       sub.Cached,
	}
}

func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		JobID:        job.ID,
		JobType:      job.JobType,
		Status:       string(job.Status),
		Phase:        string(job.Phase),
		PhaseMessage: job.PhaseMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		Result:       job.Result,
		Error:        job.Error,
	}
}

func statsToResponse(stats *service.Stats) StatsResponse {
	resp := StatsResponse{
		Results: make(map[string]int64, len(stats.Results)),
		Jobs:    make(map[string]int64, len(stats.Jobs)),
	}
	for stage, n := range stats.Results {
		resp.Results[string(stage)] = n
	}
	for status, n := range stats.Jobs {
		resp.Jobs[string(status)] = n
	}
	return resp
}
