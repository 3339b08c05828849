package testdb

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/phrazzld/recap-api/internal/config"
	"github.com/phrazzld/recap-api/internal/platform/database"
	"github.com/stretchr/testify/require"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 10 * time.Second

// PostgresURLEnv names the variable that switches tests to PostgreSQL.
const PostgresURLEnv = "RECAP_TEST_DATABASE_URL"

// IsIntegrationTestEnvironment reports whether PostgreSQL tests are enabled.
func IsIntegrationTestEnvironment() bool {
	return os.Getenv(PostgresURLEnv) != ""
}

// Config returns the database configuration a test should use.
func Config(t *testing.T) config.DatabaseConfig {
	t.Helper()
	if url := os.Getenv(PostgresURLEnv); url != "" {
		return config.DatabaseConfig{Driver: config.DriverPostgres, URL: url, MaxOpenConns: 10}
	}
	return config.DatabaseConfig{
		Driver: config.DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "recap_test.db"),
	}
}

// Open returns a migrated database that is closed when the test ends.
// PostgreSQL databases are emptied first since they are shared between tests.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	cfg := Config(t)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Open(ctx, cfg, quiet)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db, cfg.Driver, quiet), "failed to migrate test database")

	if cfg.Driver == config.DriverPostgres {
		ResetDB(t, db)
	}
	return db
}

// ResetDB removes every row from the application tables.
func ResetDB(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range []string{"jobs", "parse_results", "detect_triggers_results", "synthesize_results"} {
		_, err := db.Exec("DELETE FROM " + table)
		require.NoError(t, err, "failed to clear %s", table)
	}
}

// WithTx runs fn inside a transaction that is always rolled back.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "failed to begin transaction")

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("failed to roll back test transaction: %v", err)
		}
	}()

	fn(t, tx)
}
