package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/phrazzld/recap-api/internal/domain"
)

// ResultStore defines the interface for the per-stage generation cache.
// Reads go straight to the database, so a Get that follows a successful
// Put always observes it.
type ResultStore interface {
	// Get returns the cached entry for a stage and fingerprint.
	// Returns ErrResultNotFound if there is none.
	Get(ctx context.Context, stage domain.Stage, fingerprint string) (*domain.CacheEntry, error)

	// Put upserts the payload for a stage and fingerprint. Last writer wins.
	Put(ctx context.Context, stage domain.Stage, fingerprint string, payload json.RawMessage, producedBy string) error

	// Stats returns the number of cached entries per stage.
	Stats(ctx context.Context) (map[domain.Stage]int64, error)

	// WithTx returns a new ResultStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ResultStore
}
