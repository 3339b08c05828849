package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/recap-api/internal/api"
	"github.com/phrazzld/recap-api/internal/api/shared"
	"github.com/phrazzld/recap-api/internal/domain"
	"github.com/phrazzld/recap-api/internal/generation"
	"github.com/phrazzld/recap-api/internal/mocks"
	"github.com/phrazzld/recap-api/internal/pipeline"
	"github.com/phrazzld/recap-api/internal/platform/database"
	"github.com/phrazzld/recap-api/internal/service"
	"github.com/phrazzld/recap-api/internal/task"
	"github.com/phrazzld/recap-api/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	recapInput  = `{"game":{"homeTeam":{"name":"Hawks","score":101},"awayTeam":{"name":"Celtics","score":99}}}`
	recapOutput = `{"headline":"Hawks edge Celtics","body":"Atlanta held on late."}`
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter wires the real coordinator over a SQLite test database.
func newTestRouter(t *testing.T, gen generation.Generator) http.Handler {
	t.Helper()

	db := testdb.Open(t)
	jobs := database.NewSQLJobStore(db)
	results := database.NewSQLResultStore(db)
	registry, err := pipeline.Default()
	require.NoError(t, err)

	orch, err := service.NewOrchestrator(db, jobs, results, registry, gen, 2*time.Minute, quietLogger())
	require.NoError(t, err)

	runner := task.NewTaskRunner(jobs, task.DefaultTaskRunnerConfig(), quietLogger())
	require.NoError(t, runner.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testdb.TestTimeout)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})

	coord, err := service.NewCoordinator(jobs, results, registry, orch, runner, 2*time.Minute, quietLogger())
	require.NoError(t, err)

	return api.NewRouter(coord, quietLogger())
}

func staticGenerator(payload string) generation.Generator {
	return mocks.NewMockGeneratorWithPayload(payload)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

func TestRecapFlow_SubmitPollThenCacheHit(t *testing.T) {
	h := newTestRouter(t, staticGenerator(recapOutput))

	rr := do(t, h, http.MethodPost, "/recap", `{"input":`+recapInput+`}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(shared.TraceIDHeader))

	sub := decode[api.SubmitResponse](t, rr)
	require.NotEmpty(t, sub.JobID)
	assert.False(t, sub.Cached)
	assert.Contains(t, []string{"pending", "processing", "completed"}, sub.Status)

	var job api.JobResponse
	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/jobs/"+sub.JobID, "")
		if rr.Code != http.StatusOK {
			return false
		}
		job = decode[api.JobResponse](t, rr)
		return job.Status == "completed" || job.Status == "failed"
	}, testdb.TestTimeout, 5*time.Millisecond)

	assert.Equal(t, "completed", job.Status, job.Error)
	assert.Equal(t, "complete", job.Phase)
	assert.Equal(t, "recap", job.JobType)
	assert.JSONEq(t, recapOutput, string(job.Result))
	assert.False(t, job.CreatedAt.IsZero())
	assert.False(t, job.UpdatedAt.Before(job.CreatedAt))

	rr = do(t, h, http.MethodPost, "/recap", `{"input":`+recapInput+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	cached := decode[api.SubmitResponse](t, rr)
	assert.True(t, cached.Cached)
	assert.Equal(t, sub.JobID, cached.JobID)
	assert.Equal(t, "completed", cached.Status)
	assert.Equal(t, domain.PhaseMessageCached, cached.PhaseMessage)
	assert.JSONEq(t, recapOutput, string(cached.Result))

	rr = do(t, h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[api.StatsResponse](t, rr)
	assert.Equal(t, int64(1), stats.Results["synthesize"])
	assert.Equal(t, int64(1), stats.Jobs["completed"])
}

func TestSubmit_SameInputGeneratesOnce(t *testing.T) {
	gen := mocks.NewMockGeneratorWithPayload(recapOutput)
	h := newTestRouter(t, gen)

	// Key order and whitespace do not change the fingerprint.
	bodies := []string{
		`{"input":` + recapInput + `}`,
		`{"input":{"game":{"awayTeam":{"score":99,"name":"Celtics"},"homeTeam":{"score":101,"name":"Hawks"}}}}`,
	}

	var ids []string
	for _, body := range bodies {
		rr := do(t, h, http.MethodPost, "/recap", body)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		ids = append(ids, decode[api.SubmitResponse](t, rr).JobID)
	}
	assert.Equal(t, ids[0], ids[1])

	require.Eventually(t, func() bool {
		rr := do(t, h, http.MethodGet, "/jobs/"+ids[0], "")
		return rr.Code == http.StatusOK && decode[api.JobResponse](t, rr).Status == "completed"
	}, testdb.TestTimeout, 5*time.Millisecond)
	assert.Equal(t, 1, gen.CallCount())
}

func TestSubmit_RejectsBadRequests(t *testing.T) {
	h := newTestRouter(t, staticGenerator(recapOutput))

	tests := []struct {
		name          string
		path          string
		body          string
		wantError     string
		wantDetailSub string
	}{
		{"empty body", "/recap", "", "Request body is required", ""},
		{"malformed json", "/recap", `{"input":`, "Invalid request format", ""},
		{"unknown field", "/recap", `{"input":{},"force":true}`, "Invalid request format", ""},
		{"missing input", "/recap", `{"forceRefresh":true}`, "Invalid input", "input: required field"},
		{"input fails schema", "/recap", `{"input":{"tone":"neutral"}}`, "Invalid input", "recap schema"},
		{"null input", "/recap", `{"input":null}`, "Invalid input", "recap schema"},
		{"parse input fails schema", "/parse", `{"input":{"source":""}}`, "Invalid input", "parse schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())

			resp := decode[shared.ErrorResponse](t, rr)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.NotEmpty(t, resp.TraceID)
			if tt.wantDetailSub != "" {
				require.NotEmpty(t, resp.Details)
				assert.Contains(t, resp.Details[0], tt.wantDetailSub)
			}
		})
	}
}

func TestGetJob_Errors(t *testing.T) {
	h := newTestRouter(t, staticGenerator(recapOutput))

	rr := do(t, h, http.MethodGet, "/jobs/6f1c2a9e-0b7d-5c3e-8a4f-1d2e3f4a5b6c", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Job not found", decode[shared.ErrorResponse](t, rr).Error)

	rr = do(t, h, http.MethodGet, "/jobs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid job ID", decode[shared.ErrorResponse](t, rr).Error)
}

func TestDeleteJob_IsIdempotent(t *testing.T) {
	h := newTestRouter(t, staticGenerator(recapOutput))

	rr := do(t, h, http.MethodPost, "/recap", `{"input":`+recapInput+`}`)
	require.Equal(t, http.StatusOK, rr.Code)
	sub := decode[api.SubmitResponse](t, rr)

	for range 2 {
		rr = do(t, h, http.MethodDelete, "/jobs/"+sub.JobID, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		resp := decode[api.DeleteResponse](t, rr)
		assert.Equal(t, sub.JobID, resp.JobID)
		assert.True(t, resp.Deleted)
	}

	rr = do(t, h, http.MethodDelete, "/jobs/bogus", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	h := newTestRouter(t, staticGenerator(recapOutput))

	rr := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	rr = do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/recap", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

// failingService returns the same error from every method.
type failingService struct{ err error }

func (f failingService) Submit(context.Context, string, json.RawMessage, bool) (*service.Submission, error) {
	return nil, f.err
}

func (f failingService) GetJob(context.Context, string) (*domain.Job, error) { return nil, f.err }

func (f failingService) DeleteJob(context.Context, string) error { return f.err }

func (f failingService) Stats(context.Context) (*service.Stats, error) { return nil, f.err }

func TestServerErrorsDoNotLeakDetails(t *testing.T) {
	secret := errors.New("dial postgres://recap:hunter22@db:5432/recap: connection refused")
	h := api.NewRouter(failingService{err: secret}, quietLogger())

	tests := []struct {
		method, path, body, want string
	}{
		{http.MethodPost, "/recap", `{"input":{"game":{}}}`, "Failed to submit job"},
		{http.MethodGet, "/jobs/6f1c2a9e-0b7d-5c3e-8a4f-1d2e3f4a5b6c", "", "Failed to get job"},
		{http.MethodDelete, "/jobs/6f1c2a9e-0b7d-5c3e-8a4f-1d2e3f4a5b6c", "", "Failed to delete job"},
		{http.MethodGet, "/stats", "", "Failed to get stats"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.NotContains(t, rr.Body.String(), "hunter22")
			assert.NotContains(t, rr.Body.String(), "postgres")
			assert.Equal(t, tt.want, decode[shared.ErrorResponse](t, rr).Error)
		})
	}
}

func TestNewJobHandler_PanicsWithoutService(t *testing.T) {
	assert.Panics(t, func() { api.NewJobHandler(nil, quietLogger()) })
}
