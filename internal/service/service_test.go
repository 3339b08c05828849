package service_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/recap-api/internal/domain"
	"github.com/phrazzld/recap-api/internal/generation"
	"github.com/phrazzld/recap-api/internal/pipeline"
	"github.com/phrazzld/recap-api/internal/platform/database"
	"github.com/phrazzld/recap-api/internal/service"
	"github.com/phrazzld/recap-api/internal/task"
	"github.com/phrazzld/recap-api/internal/testdb"
	"github.com/stretchr/testify/require"
)

const recapOutput = `{"headline":"Hawks edge Celtics","body":"Atlanta held on late for a two-point win."}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recapInput(home string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"game":{"homeTeam":{"name":%q,"score":101},"awayTeam":{"name":"Celtics","score":99}},"tone":"neutral"}`,
		home,
	))
}

// fakeGenerator counts calls and delegates to a swappable function.
type fakeGenerator struct {
	calls atomic.Int32

	mu sync.Mutex
	fn func(ctx context.Context, req generation.Request) (*generation.Result, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	g.calls.Add(1)
	g.mu.Lock()
	fn := g.fn
	g.mu.Unlock()
	return fn(ctx, req)
}

func (g *fakeGenerator) set(fn func(ctx context.Context, req generation.Request) (*generation.Result, error)) {
	g.mu.Lock()
	g.fn = fn
	g.mu.Unlock()
}

func returning(payload string) func(context.Context, generation.Request) (*generation.Result, error) {
	return func(context.Context, generation.Request) (*generation.Result, error) {
		return &generation.Result{Payload: json.RawMessage(payload), Model: "fake-model"}, nil
	}
}

// blocking returns a generator function that waits for release to be closed.
func blocking(release <-chan struct{}, payload string) func(context.Context, generation.Request) (*generation.Result, error) {
	return func(ctx context.Context, _ generation.Request) (*generation.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &generation.Result{Payload: json.RawMessage(payload), Model: "fake-model"}, nil
	}
}

type fixture struct {
	db       *sql.DB
	jobs     *database.SQLJobStore
	results  *database.SQLResultStore
	registry *pipeline.Registry
	orch     *service.Orchestrator
	coord    *service.Coordinator
	runner   *task.TaskRunner
	gen      *fakeGenerator
}

func newFixture(t *testing.T, liveness time.Duration) *fixture {
	t.Helper()

	db := testdb.Open(t)
	jobs := database.NewSQLJobStore(db)
	results := database.NewSQLResultStore(db)
	registry, err := pipeline.Default()
	require.NoError(t, err)

	gen := &fakeGenerator{}
	gen.set(returning(recapOutput))

	orch, err := service.NewOrchestrator(db, jobs, results, registry, gen, liveness, quietLogger())
	require.NoError(t, err)

	runner := task.NewTaskRunner(jobs, task.TaskRunnerConfig{
		WorkerCount:         2,
		QueueSize:           16,
		LivenessWindow:      liveness,
		TerminalTTL:         time.Hour,
		MaintenanceInterval: time.Hour,
	}, quietLogger())
	require.NoError(t, runner.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testdb.TestTimeout)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	coord, err := service.NewCoordinator(jobs, results, registry, orch, runner, liveness, quietLogger())
	require.NoError(t, err)

	return &fixture{
		db:       db,
		jobs:     jobs,
		results:  results,
		registry: registry,
		orch:     orch,
		coord:    coord,
		runner:   runner,
		gen:      gen,
	}
}

// waitTerminal polls the ledger until the job is completed or failed.
func (f *fixture) waitTerminal(t *testing.T, id string) *domain.Job {
	t.Helper()

	var job *domain.Job
	require.Eventually(t, func() bool {
		j, err := f.jobs.GetByID(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status.IsTerminal()
	}, testdb.TestTimeout, 5*time.Millisecond, "job %s never reached a terminal state", id)
	return job
}

func (f *fixture) ageJob(t *testing.T, id string, age time.Duration) {
	t.Helper()
	_, err := f.db.Exec(`UPDATE jobs SET updated_at = $1 WHERE id = $2`, time.Now().UTC().Add(-age), id)
	require.NoError(t, err)
}
