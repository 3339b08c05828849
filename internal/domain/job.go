package domain

import (
	"encoding/json"
	"time"
)

// JobStatus represents the coarse lifecycle state of a job
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsActive reports whether the job is still owned by (or waiting for) an orchestrator.
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// JobPhase is the fine-grained step a job is currently in
type JobPhase string

// Possible job phase values, in the order an orchestrator moves through them
const (
	JobPhaseQueued        JobPhase = "queued"
	JobPhaseValidating    JobPhase = "validating"
	JobPhaseInvoking      JobPhase = "invoking"
	JobPhaseParsingResult JobPhase = "parsing_result"
	JobPhaseComplete      JobPhase = "complete"
	JobPhaseError         JobPhase = "error"
)

// Valid reports whether p is a known phase.
func (p JobPhase) Valid() bool {
	switch p {
	case JobPhaseQueued, JobPhaseValidating, JobPhaseInvoking,
		JobPhaseParsingResult, JobPhaseComplete, JobPhaseError:
		return true
	}
	return false
}

// Status derives the job status implied by a phase:
// queued is pending, complete is completed, error is failed,
// and everything in between is processing.
func (p JobPhase) Status() JobStatus {
	switch p {
	case JobPhaseQueued:
		return JobStatusPending
	case JobPhaseComplete:
		return JobStatusCompleted
	case JobPhaseError:
		return JobStatusFailed
	default:
		return JobStatusProcessing
	}
}

// Default phase messages shown to pollers.
const (
	PhaseMessageQueued        = "Waiting for a worker"
	PhaseMessageValidating    = "Validating input"
	PhaseMessageInvoking      = "Generating"
	PhaseMessageParsingResult = "Checking generated output"
	PhaseMessageComplete      = "Done"
	PhaseMessageFailed        = "Failed"
	PhaseMessageCached        = "Served from cache"
)

// Job tracks one unit of asynchronous generation work for a
// (job type, fingerprint) pair. The ID is derived from both, so
// resubmitting the same input always addresses the same job.
type Job struct {
	ID           string          `json:"id"`
	Fingerprint  string          `json:"fingerprint"`
	JobType      string          `json:"job_type"`
	Status       JobStatus       `json:"status"`
	Phase        JobPhase        `json:"phase"`
	PhaseMessage string          `json:"phase_message"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewJob creates a pending job in the queued phase.
// Returns an error if validation fails.
func NewJob(id, fingerprint, jobType string, now time.Time) (*Job, error) {
	job := &Job{
		ID:           id,
		Fingerprint:  fingerprint,
		JobType:      jobType,
		Status:       JobStatusPending,
		Phase:        JobPhaseQueued,
		PhaseMessage: PhaseMessageQueued,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.ID == "" {
		return NewValidationError("id", "cannot be empty", ErrInvalidID)
	}
	if j.Fingerprint == "" {
		return NewValidationError("fingerprint", "cannot be empty", ErrValidation)
	}
	if j.JobType == "" {
		return NewValidationError("job_type", "cannot be empty", ErrValidation)
	}
	if !j.Status.Valid() {
		return ErrInvalidJobStatus
	}
	if !j.Phase.Valid() {
		return ErrInvalidJobPhase
	}
	return nil
}

// IsStale reports whether an active job has gone longer than window
// without an update. Terminal jobs are never stale.
func (j *Job) IsStale(now time.Time, window time.Duration) bool {
	if !j.Status.IsActive() {
		return false
	}
	return now.Sub(j.UpdatedAt) > window
}

// WasReaped reports whether the job was failed for going stale rather than
// by its own orchestrator. Such jobs may be retried without a DELETE.
func (j *Job) WasReaped() bool {
	return j.Status == JobStatusFailed && j.Error == ErrStaleJob.Error()
}
