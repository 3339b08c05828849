package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/phrazzld/recap-api/internal/domain"
	"github.com/phrazzld/recap-api/internal/generation"
	"github.com/phrazzld/recap-api/internal/pipeline"
	"github.com/phrazzld/recap-api/internal/platform/logger"
	"github.com/phrazzld/recap-api/internal/redact"
	"github.com/phrazzld/recap-api/internal/store"
)

// recordTimeout bounds the ledger write that records a failure. It runs on a
// context detached from the job's, so a cancelled job still gets recorded.
const recordTimeout = 5 * time.Second

// heartbeatDivisor sets the heartbeat to a quarter of the liveness window.
const heartbeatDivisor = 4

// Orchestrator drives one job at a time through
// validating -> invoking -> parsing_result -> complete.
type Orchestrator struct {
	db        *sql.DB
	jobs      store.JobStore
	results   store.ResultStore
	registry  *pipeline.Registry
	generator generation.Generator
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator. livenessWindow is the reaper's
// window; the orchestrator touches a job every quarter of it while the
// generator call is in flight. A non-positive window disables the heartbeat.
func NewOrchestrator(
	db *sql.DB,
	jobs store.JobStore,
	results store.ResultStore,
	registry *pipeline.Registry,
	generator generation.Generator,
	livenessWindow time.Duration,
	logger *slog.Logger,
) (*Orchestrator, error) {
	switch {
	case db == nil:
		return nil, &ServiceError{Operation: "create_orchestrator", Message: "db cannot be nil"}
	case jobs == nil:
		return nil, &ServiceError{Operation: "create_orchestrator", Message: "jobs cannot be nil"}
	case results == nil:
		return nil, &ServiceError{Operation: "create_orchestrator", Message: "results cannot be nil"}
	case registry == nil:
		return nil, &ServiceError{Operation: "create_orchestrator", Message: "registry cannot be nil"}
	case generator == nil:
		return nil, &ServiceError{Operation: "create_orchestrator", Message: "generator cannot be nil"}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		db:        db,
		jobs:      jobs,
		results:   results,
		registry:  registry,
		generator: generator,
		heartbeat: livenessWindow / heartbeatDivisor,
		logger:    logger.With("component", "orchestrator"),
	}, nil
}

// Run executes job against input. Every failure is recorded on the job as a
// redacted message; the returned error only reports what happened, for the
// worker's log. Run never panics.
func (o *Orchestrator) Run(ctx context.Context, job *domain.Job, input json.RawMessage) (err error) {
	if job == nil {
		return errors.New("orchestrator: job cannot be nil")
	}

	log := o.logger.With(
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.String("fingerprint", job.Fingerprint),
	)
	ctx = logger.WithLogger(ctx, log)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			log.Error("job panicked",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())))
			err = o.fail(ctx, log, job, fmt.Errorf("%w: internal error", generation.ErrGenerationFailed))
		}
	}()

	if runErr := o.run(ctx, log, job, input); runErr != nil {
		return o.fail(ctx, log, job, runErr)
	}

	log.Info("job completed", slog.Duration("duration", time.Since(start)))
	return nil
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, job *domain.Job, input json.RawMessage) error {
	def, err := o.registry.Lookup(job.JobType)
	if err != nil {
		return err
	}

	if err := o.enter(ctx, log, job.ID, domain.JobPhaseValidating, domain.PhaseMessageValidating); err != nil {
		return err
	}
	if err := def.ValidateInput(input); err != nil {
		return err
	}
	req, err := def.Request(input)
	if err != nil {
		return fmt.Errorf("build generation request: %w", err)
	}

	if err := o.enter(ctx, log, job.ID, domain.JobPhaseInvoking, domain.PhaseMessageInvoking); err != nil {
		return err
	}
	stop := o.startHeartbeat(ctx, log, job.ID)
	res, err := o.generator.Generate(ctx, req)
	stop()
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("%w: generator returned no result", generation.ErrInvalidResponse)
	}

	// A job reaped during the call can no longer change phase, but its
	// output is still worth checking and caching.
	if err := o.enter(ctx, log, job.ID, domain.JobPhaseParsingResult, domain.PhaseMessageParsingResult); err != nil && !jobGone(err) {
		return err
	}
	payload, err := def.NormalizeOutput(res.Payload)
	if err != nil {
		return err
	}

	return o.commit(ctx, log, job, def.Stage, payload, res.Model)
}

// commit writes the cache entry and completes the job in one transaction.
// A job that was reaped or deleted while the generator ran keeps its state,
// but the result is still cached so the next submit is a hit.
func (o *Orchestrator) commit(
	ctx context.Context,
	log *slog.Logger,
	job *domain.Job,
	stage domain.Stage,
	payload json.RawMessage,
	model string,
) error {
	return store.RunInTransaction(ctx, o.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := o.results.WithTx(tx).Put(ctx, stage, job.Fingerprint, payload, model); err != nil {
			return fmt.Errorf("store result: %w", err)
		}
		err := o.jobs.WithTx(tx).Complete(ctx, job.ID, payload)
		if jobGone(err) {
			log.Warn("job finished after it was reaped or deleted; result cached only",
				slog.String("stage", string(stage)))
			return nil
		}
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		return nil
	})
}

func (o *Orchestrator) enter(ctx context.Context, log *slog.Logger, id string, phase domain.JobPhase, message string) error {
	if err := o.jobs.UpdatePhase(ctx, id, phase, message); err != nil {
		return fmt.Errorf("enter %s phase: %w", phase, err)
	}
	log.Debug("job phase changed", slog.String("phase", string(phase)))
	return nil
}

// startHeartbeat touches the job until the returned stop function is called.
func (o *Orchestrator) startHeartbeat(ctx context.Context, log *slog.Logger, id string) (stop func()) {
	if o.heartbeat <= 0 {
		return func() {}
	}

	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := o.jobs.Touch(hbCtx, id); err != nil && hbCtx.Err() == nil {
					log.Warn("job heartbeat failed", slog.String("error", redact.Error(err)))
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// fail records cause on the job and returns it. A job that is already
// terminal or gone is left alone.
func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, job *domain.Job, cause error) error {
	msg := redact.Message(cause)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	err := o.jobs.Fail(recordCtx, job.ID, msg)
	switch {
	case err == nil:
		log.Warn("job failed",
			slog.String("phase", string(domain.JobPhaseError)),
			slog.String("error", msg))
	case jobGone(err):
		log.Warn("job failed after it was reaped or deleted",
			slog.String("error", msg))
	default:
		log.Error("failed to record job failure",
			slog.String("error", msg),
			slog.String("record_error", redact.Error(err)))
		return errors.Join(cause, fmt.Errorf("record failure: %w", err))
	}
	return cause
}

// jobGone reports whether err means the job was reaped, finished, or deleted
// by someone else.
func jobGone(err error) bool {
	return errors.Is(err, store.ErrJobNotActive) || errors.Is(err, store.ErrJobNotFound)
}
