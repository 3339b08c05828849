package task

import (
	"context"
	"sync"
	"testing"

	"github.com/phrazzld/recap-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue(t *testing.T) {
	t.Parallel()
	log, _ := logger.NewTestLogger()
	q := NewTaskQueue(2, log)
	noop := Func{TaskID: "t", TaskType: "test", Run: func(context.Context) error { return nil }}

	require.NoError(t, q.Enqueue(noop))
	require.NoError(t, q.Enqueue(noop))
	assert.ErrorIs(t, q.Enqueue(noop), ErrQueueFull)
	assert.Equal(t, 2, q.Len())

	q.Close()
	q.Close()
	assert.ErrorIs(t, q.Enqueue(noop), ErrQueueClosed)

	var drained int
	for range q.Tasks() {
		drained++
	}
	assert.Equal(t, 2, drained, "queued tasks stay readable after close")
}

func TestTaskQueue_ConcurrentCloseAndEnqueue(t *testing.T) {
	t.Parallel()
	log, _ := logger.NewTestLogger()
	q := NewTaskQueue(100, log)
	noop := Func{TaskID: "t", Run: func(context.Context) error { return nil }}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Enqueue(noop)
		}()
	}
	q.Close()
	wg.Wait()
}

func TestNewWorkerPool_DefaultsWorkerCount(t *testing.T) {
	t.Parallel()
	log, _ := logger.NewTestLogger()
	q := NewTaskQueue(1, log)

	assert.Equal(t, 1, NewWorkerPool(q, WorkerPoolConfig{WorkerCount: 0}, log).workerCount)
	assert.Equal(t, 1, NewWorkerPool(q, WorkerPoolConfig{WorkerCount: -3}, log).workerCount)
	assert.Equal(t, 4, NewWorkerPool(q, WorkerPoolConfig{WorkerCount: 4}, log).workerCount)
}
