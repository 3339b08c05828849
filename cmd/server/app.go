package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/recap-api/internal/api"
	"github.com/phrazzld/recap-api/internal/config"
	"github.com/phrazzld/recap-api/internal/generation"
	"github.com/phrazzld/recap-api/internal/pipeline"
	"github.com/phrazzld/recap-api/internal/platform/database"
	"github.com/phrazzld/recap-api/internal/service"
	"github.com/phrazzld/recap-api/internal/store"
	"github.com/phrazzld/recap-api/internal/task"
)

// application holds the shared dependencies so they can be shut down in
// order.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jobStore    store.JobStore
	resultStore store.ResultStore
	registry    *pipeline.Registry

	taskRunner   *task.TaskRunner
	orchestrator *service.Orchestrator
	coordinator  *service.Coordinator

	router http.Handler
}

// newApplication wires the stores, runner, and services around an open,
// migrated database. It starts the task runner, which fails any job left
// active by a previous process.
func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
	gen generation.Generator,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	jobs := database.NewSQLJobStore(db)
	app.jobStore = jobs
	app.resultStore = database.NewSQLResultStore(db)

	var err error
	app.registry, err = pipeline.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline definitions: %w", err)
	}

	app.orchestrator, err = service.NewOrchestrator(
		db,
		app.jobStore,
		app.resultStore,
		app.registry,
		gen,
		cfg.Jobs.LivenessWindow,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	app.taskRunner = task.NewTaskRunner(jobs, task.TaskRunnerConfig{
		WorkerCount:         cfg.Jobs.WorkerCount,
		QueueSize:           cfg.Jobs.QueueSize,
		LivenessWindow:      cfg.Jobs.LivenessWindow,
		TerminalTTL:         cfg.Jobs.TerminalTTL,
		MaintenanceInterval: cfg.Jobs.ReapInterval,
	}, logger)
	if err := app.taskRunner.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start task runner: %w", err)
	}

	app.coordinator, err = service.NewCoordinator(
		app.jobStore,
		app.resultStore,
		app.registry,
		app.orchestrator,
		app.taskRunner,
		cfg.Jobs.LivenessWindow,
		logger,
	)
	if err != nil {
		_ = app.taskRunner.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	app.router = api.NewRouter(app.coordinator, logger)

	logger.Info("application initialized",
		"job_types", app.registry.JobTypes(),
		"workers", cfg.Jobs.WorkerCount,
		"queue_size", cfg.Jobs.QueueSize)
	return app, nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return app.serve(ctx, srv, nil)
}

// cleanup stops the workers, then closes the database.
func (app *application) cleanup(ctx context.Context) error {
	var firstErr error

	if app.taskRunner != nil {
		if err := app.taskRunner.Shutdown(ctx); err != nil {
			app.logger.Error("task runner shutdown incomplete", "error", err)
			firstErr = err
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	app.logger.Info("application shutdown completed")
	return firstErr
}
