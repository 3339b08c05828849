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
	"github.com/phrazzld/recap-api/internal/fingerprint"
	"github.com/phrazzld/recap-api/internal/platform/logger"
	"github.com/phrazzld/recap-api/internal/store"
)

// resultTables maps each stage to its cache table. Table names are never
// taken from input.
var resultTables = map[domain.Stage]string{
	domain.StageParse:          "parse_results",
	domain.StageDetectTriggers: "detect_triggers_results",
	domain.StageSynthesize:     "synthesize_results",
}

// SQLResultStore implements store.ResultStore on PostgreSQL or SQLite.
type SQLResultStore struct {
	db  store.DBTX
	now func() time.Time
}

// NewSQLResultStore creates a new result store backed by db.
func NewSQLResultStore(db store.DBTX) *SQLResultStore {
	return &SQLResultStore{db: db, now: utcNow}
}

// Ensure SQLResultStore implements store.ResultStore interface
var _ store.ResultStore = (*SQLResultStore)(nil)

// WithTx returns a new ResultStore instance that uses the provided transaction.
func (s *SQLResultStore) WithTx(tx *sql.Tx) store.ResultStore {
	return &SQLResultStore{db: tx, now: s.now}
}

func tableFor(stage domain.Stage) (string, error) {
	table, ok := resultTables[stage]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidStage, stage)
	}
	return table, nil
}

func checkFingerprint(fp string) error {
	if !fingerprint.Valid(fp) {
		return fmt.Errorf("%w: malformed fingerprint %q", store.ErrInvalidEntity, fp)
	}
	return nil
}

// Get implements store.ResultStore.
func (s *SQLResultStore) Get(
	ctx context.Context,
	stage domain.Stage,
	fp string,
) (*domain.CacheEntry, error) {
	table, err := tableFor(stage)
	if err != nil {
		return nil, err
	}
	if err := checkFingerprint(fp); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT payload, model, created_at FROM %s WHERE input_hash = $1`, table)

	var (
		payload string
		model   sql.NullString
		entry   = domain.CacheEntry{Stage: stage, Fingerprint: fp}
	)
	err = s.db.QueryRowContext(ctx, query, fp).Scan(&payload, &model, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrResultNotFound
		}
		logger.FromContext(ctx).Error("failed to read cached result",
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	entry.Payload = json.RawMessage(payload)
	entry.ProducedBy = model.String
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}

// Put implements store.ResultStore.
func (s *SQLResultStore) Put(
	ctx context.Context,
	stage domain.Stage,
	fp string,
	payload json.RawMessage,
	producedBy string,
) error {
	table, err := tableFor(stage)
	if err != nil {
		return err
	}
	if err := checkFingerprint(fp); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return fmt.Errorf("%w: payload is not valid JSON", store.ErrInvalidEntity)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (input_hash, payload, model, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (input_hash) DO UPDATE
		SET payload = excluded.payload, model = excluded.model, created_at = excluded.created_at
	`, table)

	model := sql.NullString{String: producedBy, Valid: producedBy != ""}
	if _, err := s.db.ExecContext(ctx, query, fp, string(payload), model, s.now()); err != nil {
		logger.FromContext(ctx).Error("failed to store result",
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()))
		return MapError(err)
	}
	return nil
}

// Stats implements store.ResultStore.
func (s *SQLResultStore) Stats(ctx context.Context) (map[domain.Stage]int64, error) {
	counts := make(map[domain.Stage]int64, len(domain.Stages))
	for _, stage := range domain.Stages {
		table := resultTables[stage]
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return nil, MapError(err)
		}
		counts[stage] = n
	}
	return counts, nil
}
