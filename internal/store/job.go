package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/phrazzld/recap-api/internal/domain"
)

// JobStore defines the interface for the job ledger.
// Every method is individually atomic at the storage layer; there is no
// transaction spanning several calls unless the caller uses WithTx.
type JobStore interface {
	// CreateOrGet inserts a new pending job with the given ID unless one
	// already exists. It returns the stored job and whether this call
	// inserted it. The insert is a single conflict-ignoring statement, so
	// created=true is returned to exactly one of any number of concurrent
	// callers for the same ID.
	CreateOrGet(ctx context.Context, id, fingerprint, jobType string) (*domain.Job, bool, error)

	// GetByID retrieves a job by ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id string) (*domain.Job, error)

	// GetActiveByFingerprint returns the most recently created pending or
	// processing job for the fingerprint and job type.
	// Returns ErrJobNotFound if there is none.
	GetActiveByFingerprint(ctx context.Context, fingerprint, jobType string) (*domain.Job, error)

	// UpdatePhase sets the phase and message, derives the status from the
	// phase, and bumps updated_at.
	// Returns ErrJobNotActive if the job is already terminal.
	UpdatePhase(ctx context.Context, id string, phase domain.JobPhase, message string) error

	// Touch bumps updated_at without changing the phase, marking the job as alive.
	// Returns ErrJobNotActive if the job is already terminal.
	Touch(ctx context.Context, id string) error

	// Complete marks the job completed and stores its result.
	// Returns ErrJobNotActive if the job is already terminal.
	Complete(ctx context.Context, id string, result json.RawMessage) error

	// Fail marks the job failed with the given error message.
	// Returns ErrJobNotActive if the job is already terminal.
	Fail(ctx context.Context, id string, errMsg string) error

	// Delete removes the job. Deleting a missing job is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteIfUnchanged removes the job only if its updated_at still equals
	// updatedAt. It reports whether a row was removed; false means the job
	// is gone or was modified since it was read.
	DeleteIfUnchanged(ctx context.Context, id string, updatedAt time.Time) (bool, error)

	// ReapStale fails every pending or processing job whose updated_at is
	// older than olderThan. A zero olderThan reaps every active job.
	// Returns the IDs of the reaped jobs.
	ReapStale(ctx context.Context, olderThan time.Duration) ([]string, error)

	// SweepTerminal deletes completed and failed jobs whose updated_at is
	// older than ttl. Returns the number of jobs removed.
	SweepTerminal(ctx context.Context, ttl time.Duration) (int64, error)

	// CountByStatus returns the number of jobs in each status.
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	WithTx(tx *sql.Tx) JobStore
}
