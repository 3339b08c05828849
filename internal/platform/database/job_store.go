package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/recap-api/internal/domain"
	"github.com/phrazzld/recap-api/internal/platform/logger"
	"github.com/phrazzld/recap-api/internal/store"
)

// ReapedJobMessage is recorded on jobs failed by the reaper.
var ReapedJobMessage = domain.ErrStaleJob.Error()

// createAttempts bounds how often CreateOrGet retries when the conflicting
// row disappears between the insert and the read.
const createAttempts = 3

const jobColumns = `id, fingerprint, job_type, status, phase, phase_message,
	result, error_message, created_at, updated_at`

// SQLJobStore implements store.JobStore on PostgreSQL or SQLite.
type SQLJobStore struct {
	db  store.DBTX
	now func() time.Time
}

// NewSQLJobStore creates a new job store backed by db.
func NewSQLJobStore(db store.DBTX) *SQLJobStore {
	return &SQLJobStore{db: db, now: utcNow}
}

// Ensure SQLJobStore implements store.JobStore interface
var _ store.JobStore = (*SQLJobStore)(nil)

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// WithTx returns a new JobStore instance that uses the provided transaction.
func (s *SQLJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &SQLJobStore{db: tx, now: s.now}
}

// CreateOrGet implements store.JobStore.
func (s *SQLJobStore) CreateOrGet(
	ctx context.Context,
	id, fingerprint, jobType string,
) (*domain.Job, bool, error) {
	log := logger.FromContext(ctx)

	job, err := domain.NewJob(id, fingerprint, jobType, s.now())
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO jobs (id, fingerprint, job_type, status, phase, phase_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	for attempt := 1; attempt <= createAttempts; attempt++ {
		result, err := s.db.ExecContext(ctx, query,
			job.ID,
			job.Fingerprint,
			job.JobType,
			string(job.Status),
			string(job.Phase),
			job.PhaseMessage,
			job.CreatedAt,
			job.UpdatedAt,
		)
		if err != nil {
			log.Error("failed to insert job",
				slog.String("job_id", id),
				slog.String("error", err.Error()))
			return nil, false, MapError(err)
		}

		n, err := rowsAffected(result)
		if err != nil {
			return nil, false, err
		}
		if n == 1 {
			log.Debug("job created",
				slog.String("job_id", id),
				slog.String("job_type", jobType))
			return job, true, nil
		}

		existing, err := s.GetByID(ctx, id)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrJobNotFound) {
			return nil, false, err
		}
		// Deleted between the insert and the read; try again.
		log.Debug("conflicting job vanished, retrying insert",
			slog.String("job_id", id),
			slog.Int("attempt", attempt))
	}

	return nil, false, fmt.Errorf("%w: job %s kept changing during create", store.ErrUpdateFailed, id)
}

// GetByID implements store.JobStore.
func (s *SQLJobStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		logger.FromContext(ctx).Error("failed to get job",
			slog.String("job_id", id),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return job, nil
}

// GetActiveByFingerprint implements store.JobStore.
func (s *SQLJobStore) GetActiveByFingerprint(
	ctx context.Context,
	fingerprint, jobType string,
) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE fingerprint = $1 AND job_type = $2 AND status IN ($3, $4)
		ORDER BY created_at DESC
		LIMIT 1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		fingerprint,
		jobType,
		string(domain.JobStatusPending),
		string(domain.JobStatusProcessing),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		return nil, MapError(err)
	}
	return job, nil
}

// UpdatePhase implements store.JobStore.
func (s *SQLJobStore) UpdatePhase(
	ctx context.Context,
	id string,
	phase domain.JobPhase,
	message string,
) error {
	if !phase.Valid() {
		return domain.ErrInvalidJobPhase
	}
	query := `
		UPDATE jobs
		SET status = $1, phase = $2, phase_message = $3, updated_at = $4
		WHERE id = $5 AND status IN ($6, $7)
	`
	return s.updateActive(ctx, "update phase", id, query,
		string(phase.Status()),
		string(phase),
		message,
		s.now(),
		id,
		string(domain.JobStatusPending),
		string(domain.JobStatusProcessing),
	)
}

// Touch implements store.JobStore.
func (s *SQLJobStore) Touch(ctx context.Context, id string) error {
	query := `
		UPDATE jobs
		SET updated_at = $1
		WHERE id = $2 AND status IN ($3, $4)
	`
	return s.updateActive(ctx, "touch", id, query,
		s.now(),
		id,
		string(domain.JobStatusPending),
		string(domain.JobStatusProcessing),
	)
}

// Complete implements store.JobStore.
func (s *SQLJobStore) Complete(ctx context.Context, id string, result json.RawMessage) error {
	if !json.Valid(result) {
		return fmt.Errorf("%w: result is not valid JSON", store.ErrInvalidEntity)
	}
	query := `
		UPDATE jobs
		SET status = $1, phase = $2, phase_message = $3, result = $4, error_message = NULL, updated_at = $5
		WHERE id = $6 AND status IN ($7, $8)
	`
	return s.updateActive(ctx, "complete", id, query,
		string(domain.JobStatusCompleted),
		string(domain.JobPhaseComplete),
		domain.PhaseMessageComplete,
		string(result),
		s.now(),
		id,
		string(domain.JobStatusPending),
		string(domain.JobStatusProcessing),
	)
}

// Fail implements store.JobStore.
func (s *SQLJobStore) Fail(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1, phase = $2, phase_message = $3, error_message = $4, updated_at = $5
		WHERE id = $6 AND status IN ($7, $8)
	`
	return s.updateActive(ctx, "fail", id, query,
		string(domain.JobStatusFailed),
		string(domain.JobPhaseError),
		domain.PhaseMessageFailed,
		errMsg,
		s.now(),
		id,
		string(domain.JobStatusPending),
		string(domain.JobStatusProcessing),
	)
}

// updateActive runs an update guarded by the active-status condition and
// tells a missing job apart from a terminal one when nothing changed.
func (s *SQLJobStore) updateActive(
	ctx context.Context,
	op, id, query string,
	args ...any,
) error {
	log := logger.FromContext(ctx)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update job",
			slog.String("operation", op),
			slog.String("job_id", id),
			slog.String("error", err.Error()))
		return MapError(err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	log.Debug("ignored update to terminal job",
		slog.String("operation", op),
		slog.String("job_id", id))
	return store.ErrJobNotActive
}

// Delete implements store.JobStore.
func (s *SQLJobStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		logger.FromContext(ctx).Error("failed to delete job",
			slog.String("job_id", id),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// DeleteIfUnchanged implements store.JobStore.
func (s *SQLJobStore) DeleteIfUnchanged(ctx context.Context, id string, updatedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE id = $1 AND updated_at = $2`,
		id, updatedAt.UTC())
	if err != nil {
		logger.FromContext(ctx).Error("failed to delete job",
			slog.String("job_id", id),
			slog.String("error", err.Error()))
		return false, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ReapStale implements store.JobStore.
func (s *SQLJobStore) ReapStale(ctx context.Context, olderThan time.Duration) ([]string, error) {
	log := logger.FromContext(ctx)
	now := s.now()

	query := `
		UPDATE jobs
		SET status = $1, phase = $2, phase_message = $3, error_message = $4, updated_at = $5
		WHERE status IN ($6, $7) AND updated_at < $8
		RETURNING id
	`
	cutoff := now.Add(-olderThan)
	if olderThan <= 0 {
		// Everything active, including rows touched in this instant.
		cutoff = now.Add(time.Second)
	}

	rows, err := s.db.QueryContext(ctx, query,
		string(domain.JobStatusFailed),
		string(domain.JobPhaseError),
		domain.PhaseMessageFailed,
		ReapedJobMessage,
		now,
		string(domain.JobStatusPending),
		string(domain.JobStatusProcessing),
		cutoff,
	)
	if err != nil {
		log.Error("failed to reap stale jobs", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reaped job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reaped jobs: %w", err)
	}

	if len(ids) > 0 {
		log.Info("reaped stale jobs",
			slog.Int("count", len(ids)),
			slog.Duration("older_than", olderThan))
	}
	return ids, nil
}

// SweepTerminal implements store.JobStore.
func (s *SQLJobStore) SweepTerminal(ctx context.Context, ttl time.Duration) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ($1, $2) AND updated_at < $3
	`
	result, err := s.db.ExecContext(ctx, query,
		string(domain.JobStatusCompleted),
		string(domain.JobStatusFailed),
		s.now().Add(-ttl),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to sweep terminal jobs",
			slog.String("error", err.Error()))
		return 0, MapError(err)
	}
	return rowsAffected(result)
}

// CountByStatus implements store.JobStore.
func (s *SQLJobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[domain.JobStatus]int64{
		domain.JobStatusPending:    0,
		domain.JobStatusProcessing: 0,
		domain.JobStatusCompleted:  0,
		domain.JobStatusFailed:     0,
	}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[domain.JobStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job counts: %w", err)
	}
	return counts, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job          domain.Job
		status       string
		phase        string
		result       sql.NullString
		errorMessage sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.Fingerprint,
		&job.JobType,
		&status,
		&phase,
		&job.PhaseMessage,
		&result,
		&errorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	job.Phase = domain.JobPhase(phase)
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	job.Error = errorMessage.String
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return &job, nil
}
