package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/phrazzld/recap-api/internal/config"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// ErrSchemaOutdated is returned by CheckSchema when embedded migrations
// have not been applied.
var ErrSchemaOutdated = errors.New("database schema is not up to date")

// gooseLogger adapts the goose logger interface to slog.
type gooseLogger struct {
	logger *slog.Logger
}

// Printf forwards goose progress messages at info level.
func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

// Fatalf logs at error level. It does not exit; the error is returned to the caller.
func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func migrationSource(driver string) (goose.Dialect, fs.FS, error) {
	var (
		dialect goose.Dialect
		dir     string
	)
	switch driver {
	case config.DriverPostgres:
		dialect, dir = goose.DialectPostgres, "migrations/postgres"
	case config.DriverSQLite:
		dialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	default:
		return "", nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return dialect, sub, nil
}

func newProvider(db *sql.DB, driver string, logger *slog.Logger) (*goose.Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialect, fsys, err := migrationSource(driver)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(dialect, db, fsys,
		goose.WithLogger(&gooseLogger{logger: logger}),
		goose.WithVerbose(logger.Enabled(context.Background(), slog.LevelDebug)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// Migrate applies every pending migration for the driver's dialect.
func Migrate(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	provider, err := newProvider(db, driver, logger)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	logger.Info("database migrations applied",
		slog.String("driver", driver),
		slog.Int("applied", len(results)),
		slog.Int64("version", version))
	return nil
}

// MigrationStatus reports each known migration and whether it has been applied.
type MigrationStatus struct {
	Version int64
	Source  string
	Applied bool
}

// Status lists the embedded migrations for the driver's dialect and their state.
func Status(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger) ([]MigrationStatus, error) {
	provider, err := newProvider(db, driver, logger)
	if err != nil {
		return nil, err
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Source:  s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

// CheckSchema returns ErrSchemaOutdated, naming the pending versions, unless
// every embedded migration has been applied.
func CheckSchema(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger) error {
	statuses, err := Status(ctx, db, driver, logger)
	if err != nil {
		return err
	}
	var pending []int64
	for _, s := range statuses {
		if !s.Applied {
			pending = append(pending, s.Version)
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("%w: pending versions %v", ErrSchemaOutdated, pending)
	}
	return nil
}
