package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/recap-api/internal/domain"
	"github.com/phrazzld/recap-api/internal/fingerprint"
	"github.com/phrazzld/recap-api/internal/pipeline"
	"github.com/phrazzld/recap-api/internal/redact"
	"github.com/phrazzld/recap-api/internal/store"
	"github.com/phrazzld/recap-api/internal/task"
)

// replaceAttempts bounds how often Submit re-reads the ledger after a
// stale or finished job changed underneath it.
const replaceAttempts = 3

// errJobChanged means a job row was modified between being read and being
// replaced.
var errJobChanged = errors.New("job changed during replace")

// Dispatcher hands tasks to background workers without blocking.
// It is satisfied by *task.TaskRunner.
type Dispatcher interface {
	Submit(t task.Task) error
}

// Submission is the immediate answer to a submit: either a cached result
// or the state of the job that will produce one.
type Submission struct {
	JobID        string
	Status       domain.JobStatus
	Phase        domain.JobPhase
	PhaseMessage string
	Result       json.RawMessage
	Error        string
	// Cached is true when the answer came from the result cache and no job
	// row exists for JobID.
	Cached bool
}

// Stats summarizes the result cache and the job ledger.
type Stats struct {
	Results map[domain.Stage]int64
	Jobs    map[domain.JobStatus]int64
}

// Coordinator is the entry point for generation requests.
type Coordinator struct {
	jobs         store.JobStore
	results      store.ResultStore
	registry     *pipeline.Registry
	orchestrator *Orchestrator
	dispatcher   Dispatcher
	liveness     time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewCoordinator creates a Coordinator. livenessWindow decides when an
// active job found during submit is treated as stale.
func NewCoordinator(
	jobs store.JobStore,
	results store.ResultStore,
	registry *pipeline.Registry,
	orchestrator *Orchestrator,
	dispatcher Dispatcher,
	livenessWindow time.Duration,
	logger *slog.Logger,
) (*Coordinator, error) {
	switch {
	case jobs == nil:
		return nil, &ServiceError{Operation: "create_coordinator", Message: "jobs cannot be nil"}
	case results == nil:
		return nil, &ServiceError{Operation: "create_coordinator", Message: "results cannot be nil"}
	case registry == nil:
		return nil, &ServiceError{Operation: "create_coordinator", Message: "registry cannot be nil"}
	case orchestrator == nil:
		return nil, &ServiceError{Operation: "create_coordinator", Message: "orchestrator cannot be nil"}
	case dispatcher == nil:
		return nil, &ServiceError{Operation: "create_coordinator", Message: "dispatcher cannot be nil"}
	case livenessWindow <= 0:
		return nil, &ServiceError{Operation: "create_coordinator", Message: "liveness window must be positive"}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		jobs:         jobs,
		results:      results,
		registry:     registry,
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		liveness:     livenessWindow,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With("component", "coordinator"),
	}, nil
}

// Submit answers a generation request for jobType.
//
// Invalid input is rejected synchronously with a *domain.ValidationError.
// Otherwise the result comes from the cache, from the job already working on
// the same input, or from a new job dispatched to the workers. forceRefresh
// skips the cache read and replaces a finished job, but still joins an
// active one.
func (c *Coordinator) Submit(
	ctx context.Context,
	jobType string,
	input json.RawMessage,
	forceRefresh bool,
) (*Submission, error) {
	def, err := c.registry.Lookup(jobType)
	if err != nil {
		return nil, err
	}
	if err := def.ValidateInput(input); err != nil {
		return nil, err
	}
	fp, err := fingerprint.Of(input)
	if err != nil {
		return nil, domain.NewValidationError("input", err.Error(), domain.ErrValidation)
	}
	id := fingerprint.JobID(jobType, fp)
	log := c.logger.With(
		slog.String("job_id", id),
		slog.String("job_type", jobType),
		slog.String("fingerprint", fp),
	)

	if !forceRefresh {
		entry, err := c.results.Get(ctx, def.Stage, fp)
		switch {
		case err == nil:
			log.Debug("cache hit", slog.String("stage", string(def.Stage)))
			return &Submission{
				JobID:        id,
				Status:       domain.JobStatusCompleted,
				Phase:        domain.JobPhaseComplete,
				PhaseMessage: domain.PhaseMessageCached,
				Result:       entry.Payload,
				Cached:       true,
			}, nil
		case !errors.Is(err, store.ErrResultNotFound):
			return nil, NewServiceError("submit", "failed to read result cache", err)
		}
	}

	for attempt := 1; ; attempt++ {
		sub, err := c.reuseOrClear(ctx, log, jobType, fp, id, forceRefresh)
		if err == nil {
			if sub != nil {
				return sub, nil
			}
			break
		}
		if !errors.Is(err, errJobChanged) {
			return nil, err
		}
		if attempt == replaceAttempts {
			return nil, NewServiceError("submit", "job kept changing during replace", err)
		}
		log.Debug("job changed during replace, retrying", slog.Int("attempt", attempt))
	}

	job, created, err := c.jobs.CreateOrGet(ctx, id, fp, jobType)
	if err != nil {
		return nil, NewServiceError("submit", "failed to create job", err)
	}
	if !created {
		log.Debug("job already exists", slog.String("status", string(job.Status)))
		return submissionFromJob(job), nil
	}

	log.Info("job created")
	return c.dispatch(ctx, log, job, input)
}

// reuseOrClear returns the submission for a job that should answer this
// request, or nil once the job ID is free for a new job. Stale and
// replaceable finished jobs are deleted on the way. errJobChanged is
// returned when another request modified the row first.
func (c *Coordinator) reuseOrClear(
	ctx context.Context,
	log *slog.Logger,
	jobType, fp, id string,
	forceRefresh bool,
) (*Submission, error) {
	active, err := c.jobs.GetActiveByFingerprint(ctx, fp, jobType)
	switch {
	case err == nil:
		if !active.IsStale(c.now(), c.liveness) {
			log.Debug("joined active job", slog.String("status", string(active.Status)))
			return submissionFromJob(active), nil
		}
		if err := c.discardStale(ctx, log, active); err != nil {
			return nil, err
		}
	case !errors.Is(err, store.ErrJobNotFound):
		return nil, NewServiceError("submit", "failed to look up active job", err)
	}

	existing, err := c.jobs.GetByID(ctx, id)
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		return nil, nil
	case err != nil:
		return nil, NewServiceError("submit", "failed to look up job", err)
	case !existing.Status.IsTerminal():
		// Created by a concurrent request since the active lookup.
		return submissionFromJob(existing), nil
	case !forceRefresh && !existing.WasReaped():
		return submissionFromJob(existing), nil
	}

	if err := c.deleteUnchanged(ctx, existing, "failed to replace finished job"); err != nil {
		return nil, err
	}
	log.Info("replacing finished job",
		slog.String("status", string(existing.Status)),
		slog.Bool("force_refresh", forceRefresh))
	return nil, nil
}

// discardStale fails an active job that stopped making progress, then
// removes it so a fresh job can take its ID.
func (c *Coordinator) discardStale(ctx context.Context, log *slog.Logger, job *domain.Job) error {
	log.Warn("discarding stale job",
		slog.String("status", string(job.Status)),
		slog.String("phase", string(job.Phase)),
		slog.Time("updated_at", job.UpdatedAt))

	err := c.jobs.Fail(ctx, job.ID, domain.ErrStaleJob.Error())
	switch {
	case errors.Is(err, store.ErrJobNotActive), errors.Is(err, store.ErrJobNotFound):
		return errJobChanged
	case err != nil:
		return NewServiceError("submit", "failed to fail stale job", err)
	}

	failed, err := c.jobs.GetByID(ctx, job.ID)
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		return errJobChanged
	case err != nil:
		return NewServiceError("submit", "failed to reload stale job", err)
	}
	return c.deleteUnchanged(ctx, failed, "failed to delete stale job")
}

// deleteUnchanged removes job only if nobody touched it since it was read.
func (c *Coordinator) deleteUnchanged(ctx context.Context, job *domain.Job, msg string) error {
	deleted, err := c.jobs.DeleteIfUnchanged(ctx, job.ID, job.UpdatedAt)
	if err != nil {
		return NewServiceError("submit", msg, err)
	}
	if !deleted {
		return errJobChanged
	}
	return nil
}

// dispatch hands a freshly created job to the workers. A rejected dispatch
// fails the job right away so pollers are not left waiting on it.
func (c *Coordinator) dispatch(ctx context.Context, log *slog.Logger, job *domain.Job, input json.RawMessage) (*Submission, error) {
	input = append(json.RawMessage(nil), input...)

	err := c.dispatcher.Submit(task.Func{
		TaskID:   job.ID,
		TaskType: job.JobType,
		Run: func(ctx context.Context) error {
			return c.orchestrator.Run(ctx, job, input)
		},
	})
	if err == nil {
		return submissionFromJob(job), nil
	}

	cause := fmt.Errorf("%w: %w", ErrDispatchRejected, err)
	log.Error("job dispatch rejected", slog.String("error", cause.Error()))

	msg := redact.Message(cause)
	if failErr := c.jobs.Fail(ctx, job.ID, msg); failErr != nil && !errors.Is(failErr, store.ErrJobNotActive) {
		return nil, NewServiceError("submit", "failed to record rejected dispatch", failErr)
	}

	failed, getErr := c.jobs.GetByID(ctx, job.ID)
	if getErr != nil {
		return nil, NewServiceError("submit", "failed to reload rejected job", getErr)
	}
	return submissionFromJob(failed), nil
}

// GetJob returns the job with the given ID, or ErrJobNotFound.
func (c *Coordinator) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	job, err := c.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("get_job", "failed to retrieve job", err)
	}
	return job, nil
}

// DeleteJob removes a job so the same input can be resubmitted.
// Deleting a missing job succeeds. Cached results are untouched.
func (c *Coordinator) DeleteJob(ctx context.Context, id string) error {
	if err := c.jobs.Delete(ctx, id); err != nil {
		return NewServiceError("delete_job", "failed to delete job", err)
	}
	c.logger.Info("job deleted", slog.String("job_id", id))
	return nil
}

// Stats returns cache entry counts per stage and job counts per status.
func (c *Coordinator) Stats(ctx context.Context) (*Stats, error) {
	results, err := c.results.Stats(ctx)
	if err != nil {
		return nil, NewServiceError("stats", "failed to count results", err)
	}
	jobs, err := c.jobs.CountByStatus(ctx)
	if err != nil {
		return nil, NewServiceError("stats", "failed to count jobs", err)
	}
	return &Stats{Results: results, Jobs: jobs}, nil
}

// JobTypes lists the job types Submit accepts.
func (c *Coordinator) JobTypes() []string {
	return c.registry.JobTypes()
}

func submissionFromJob(job *domain.Job) *Submission {
	return &Submission{
		JobID:        job.ID,
		Status:       job.Status,
		Phase:        job.Phase,
		PhaseMessage: job.PhaseMessage,
		Result:       job.Result,
		Error:        job.Error,
	}
}
