package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrRunnerNotStarted is returned by Submit before Start has been called.
var ErrRunnerNotStarted = errors.New("task runner not started")

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// LivenessWindow is how long an active job may go without an update
	// before the maintenance loop fails it.
	LivenessWindow time.Duration

	// TerminalTTL is how long completed and failed jobs are kept.
	TerminalTTL time.Duration

	// MaintenanceInterval defines how often to reap and sweep.
	// If zero, defaults to 1 minute.
	MaintenanceInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:         2,
		QueueSize:           100,
		LivenessWindow:      2 * time.Minute,
		TerminalTTL:         60 * time.Minute,
		MaintenanceInterval: time.Minute,
	}
}

// TaskRunner manages background task processing and ledger maintenance.
type TaskRunner struct {
	maint  Maintainer
	queue  *TaskQueue
	pool   *WorkerPool
	config TaskRunnerConfig
	logger *slog.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	stopMain context.CancelFunc
	mainDone chan struct{}
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(maint Maintainer, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if config.MaintenanceInterval <= 0 {
		config.MaintenanceInterval = time.Minute
	}
	logger = logger.With(slog.String("component", "task_runner"))

	queue := NewTaskQueue(config.QueueSize, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)

	return &TaskRunner{
		maint:  maint,
		queue:  queue,
		pool:   pool,
		config: config,
		logger: logger,
	}
}

// SetErrorHandler allows setting a custom error handler function.
// Must be called before Start.
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.pool.SetErrorHandler(handler)
}

// Start fails every job left active by a previous process, then starts the
// workers and the maintenance loop.
func (r *TaskRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.New("task runner already started")
	}

	if err := r.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	r.pool.Start()

	mainCtx, cancel := context.WithCancel(context.Background())
	r.stopMain = cancel
	r.mainDone = make(chan struct{})
	go r.maintenanceLoop(mainCtx)

	r.started = true
	return nil
}

// Recover fails every pending or processing job. Nothing from a previous
// process can still be running, so none of them would ever finish.
func (r *TaskRunner) Recover(ctx context.Context) error {
	reaped, err := r.maint.ReapStale(ctx, 0)
	if err != nil {
		return err
	}
	r.logger.Info("recovered unfinished jobs", slog.Int("failed_count", len(reaped)))
	return nil
}

// Submit hands a task to the workers without blocking.
// Returns ErrQueueFull when the queue is at capacity and ErrQueueClosed
// after shutdown has begun.
func (r *TaskRunner) Submit(task Task) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return ErrRunnerNotStarted
	}
	return r.queue.Enqueue(task)
}

// QueueLength returns the number of tasks waiting for a worker.
func (r *TaskRunner) QueueLength() int {
	return r.queue.Len()
}

// Shutdown stops accepting tasks and waits for queued and in-flight tasks to
// finish. If ctx expires first, in-flight tasks are cancelled and ctx's error
// is returned once the workers exit.
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	r.stopMain()
	<-r.mainDone

	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("task runner stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("shutdown deadline reached, cancelling in-flight tasks",
			slog.Int("queued", r.queue.Len()))
		r.pool.Abort()
		<-done
		return ctx.Err()
	}
}

// RunMaintenance reaps stale active jobs and sweeps expired terminal jobs once.
func (r *TaskRunner) RunMaintenance(ctx context.Context) error {
	var errs []error

	reaped, err := r.maint.ReapStale(ctx, r.config.LivenessWindow)
	if err != nil {
		errs = append(errs, fmt.Errorf("reap stale jobs: %w", err))
	} else if len(reaped) > 0 {
		r.logger.Info("reaped stale jobs",
			slog.Int("count", len(reaped)),
			slog.Any("job_ids", reaped))
	}

	swept, err := r.maint.SweepTerminal(ctx, r.config.TerminalTTL)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep terminal jobs: %w", err))
	} else if swept > 0 {
		r.logger.Info("swept terminal jobs", slog.Int64("count", swept))
	}

	return errors.Join(errs...)
}

func (r *TaskRunner) maintenanceLoop(ctx context.Context) {
	defer close(r.mainDone)

	ticker := time.NewTicker(r.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunMaintenance(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("ledger maintenance failed", slog.String("error", err.Error()))
			}
		}
	}
}
