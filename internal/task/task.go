package task

import (
	"context"
	"time"
)

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's identifier, used for logging
	ID() string

	// Type returns the task type identifier
	Type() string

	// Execute runs the task logic. The context is cancelled only when the
	// runner is forced to stop before the task finishes.
	Execute(ctx context.Context) error
}

// Source feeds tasks to workers. Workers stop once the channel is closed
// and drained.
type Source interface {
	Tasks() <-chan Task
}

// Maintainer performs the periodic ledger housekeeping. It is satisfied
// by store.JobStore.
type Maintainer interface {
	// ReapStale fails active jobs not updated within olderThan; zero means all.
	ReapStale(ctx context.Context, olderThan time.Duration) ([]string, error)

	// SweepTerminal deletes terminal jobs older than ttl.
	SweepTerminal(ctx context.Context, ttl time.Duration) (int64, error)
}

// Func adapts a function to the Task interface.
type Func struct {
	TaskID   string
	TaskType string
	Run      func(ctx context.Context) error
}

// ID implements Task.
func (f Func) ID() string { return f.TaskID }

// Type implements Task.
func (f Func) Type() string { return f.TaskType }

// Execute implements Task.
func (f Func) Execute(ctx context.Context) error { return f.Run(ctx) }
