package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobPhase_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phase JobPhase
		want  JobStatus
	}{
		{JobPhaseQueued, JobStatusPending},
		{JobPhaseValidating, JobStatusProcessing},
		{JobPhaseInvoking, JobStatusProcessing},
		{JobPhaseParsingResult, JobStatusProcessing},
		{JobPhaseComplete, JobStatusCompleted},
		{JobPhaseError, JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.phase.Status())
		})
	}
}

func TestNewJob(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.March, 3, 20, 0, 0, 0, time.UTC)

	t.Run("valid job starts queued", func(t *testing.T) {
		job, err := NewJob("job-1", "abc123", "recap", now)
		require.NoError(t, err)
		assert.Equal(t, JobStatusPending, job.Status)
		assert.Equal(t, JobPhaseQueued, job.Phase)
		assert.Equal(t, PhaseMessageQueued, job.PhaseMessage)
		assert.Equal(t, now, job.CreatedAt)
		assert.Equal(t, now, job.UpdatedAt)
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := NewJob("", "abc123", "recap", now)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidID))
	})

	t.Run("missing fingerprint", func(t *testing.T) {
		_, err := NewJob("job-1", "", "recap", now)
		require.Error(t, err)
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "fingerprint", vErr.Field)
	})
}

func TestJob_IsStale(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, time.March, 3, 20, 0, 0, 0, time.UTC)
	window := 2 * time.Minute

	tests := []struct {
		name      string
		status    JobStatus
		updatedAt time.Time
		want      bool
	}{
		{"fresh processing", JobStatusProcessing, now.Add(-time.Minute), false},
		{"old processing", JobStatusProcessing, now.Add(-3 * time.Minute), true},
		{"old pending", JobStatusPending, now.Add(-3 * time.Minute), true},
		{"old completed", JobStatusCompleted, now.Add(-time.Hour), false},
		{"old failed", JobStatusFailed, now.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Status: tt.status, UpdatedAt: tt.updatedAt}
			assert.Equal(t, tt.want, job.IsStale(now, window))
		})
	}
}

func TestJob_WasReaped(t *testing.T) {
	t.Parallel()

	reaped := &Job{Status: JobStatusFailed, Error: ErrStaleJob.Error()}
	assert.True(t, reaped.WasReaped())

	generationFailure := &Job{Status: JobStatusFailed, Error: "invalid response from language model"}
	assert.False(t, generationFailure.WasReaped())

	active := &Job{Status: JobStatusProcessing, Error: ErrStaleJob.Error()}
	assert.False(t, active.WasReaped())
}

func TestStage_Valid(t *testing.T) {
	t.Parallel()
	assert.True(t, StageSynthesize.Valid())
	assert.True(t, StageParse.Valid())
	assert.False(t, Stage("scrape").Valid())
}
