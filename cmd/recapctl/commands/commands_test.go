package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/recap-api/cmd/recapctl/commands"
	"github.com/phrazzld/recap-api/internal/api"
)

const (
	jobID       = "6f1c2a9e-0b7d-5c3e-8a4f-1d2e3f4a5b6c"
	recapOutput = `{"headline":"Hawks edge Celtics"}`
)

// fakeServer completes a job on the second status request.
func fakeServer(t *testing.T) (*httptest.Server, *atomic.Value) {
	t.Helper()

	var lastBody atomic.Value
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /recap", func(w http.ResponseWriter, r *http.Request) {
		var req api.SubmitRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		lastBody.Store(req)
		writeJSON(w, http.StatusOK, api.SubmitResponse{JobID: jobID, Status: "pending", Phase: "queued", PhaseMessage: "Queued"})
	})
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job := api.JobResponse{JobID: r.PathValue("id"), JobType: "recap", Status: "processing", Phase: "invoking"}
		if polls.Add(1) >= 2 {
			job.Status, job.Phase, job.Result = "completed", "complete", json.RawMessage(recapOutput)
		}
		writeJSON(w, http.StatusOK, job)
	})
	mux.HandleFunc("DELETE /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.DeleteResponse{JobID: r.PathValue("id"), Deleted: true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &lastBody
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var out, errOut bytes.Buffer
	cli := commands.New()
	cli.SetArgs(args)
	cli.SetIO(strings.NewReader(stdin), &out, &errOut)
	err := cli.Execute(context.Background())
	return out.String(), errOut.String(), err
}

func TestSubmit_FromStdin(t *testing.T) {
	srv, body := fakeServer(t)

	out, _, err := execute(t, `{"game":{"id":1}}`, "submit", "recap", "--force", "-s", srv.URL)
	require.NoError(t, err)

	var sub api.SubmitResponse
	require.NoError(t, json.Unmarshal([]byte(out), &sub))
	assert.Equal(t, jobID, sub.JobID)

	req := body.Load().(api.SubmitRequest)
	assert.True(t, req.ForceRefresh)
	assert.JSONEq(t, `{"game":{"id":1}}`, string(req.Input))
}

func TestSubmit_FromFileAndWait(t *testing.T) {
	srv, _ := fakeServer(t)

	path := filepath.Join(t.TempDir(), "game.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"game":{"id":2}}`), 0o600))

	out, progress, err := execute(t, "", "submit", "recap", path, "--wait", "--interval", "5ms", "-s", srv.URL)
	require.NoError(t, err)
	assert.JSONEq(t, recapOutput, out)
	assert.Contains(t, progress, "job "+jobID+" submitted")
	assert.Contains(t, progress, "invoking")
	assert.Contains(t, progress, "complete")
}

func TestSubmit_RejectsInvalidInput(t *testing.T) {
	srv, _ := fakeServer(t)

	_, _, err := execute(t, `{"game":`, "submit", "recap", "-s", srv.URL)
	assert.ErrorContains(t, err, "not valid JSON")

	_, _, err = execute(t, `{}`, "submit", "haiku", "-s", srv.URL)
	assert.ErrorContains(t, err, "unknown job type")

	_, _, err = execute(t, `{}`, "submit")
	assert.Error(t, err)
}

func TestStatusWaitDelete(t *testing.T) {
	srv, _ := fakeServer(t)

	out, _, err := execute(t, "", "status", jobID, "-s", srv.URL)
	require.NoError(t, err)
	var job api.JobResponse
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, "processing", job.Status)

	out, _, err = execute(t, "", "wait", jobID, "--interval", "5ms", "-s", srv.URL)
	require.NoError(t, err)
	assert.JSONEq(t, recapOutput, out)

	out, _, err = execute(t, "", "delete", jobID, "-s", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "deleted "+jobID+"\n", out)
}
