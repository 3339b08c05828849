package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sethvargo/go-retry"

	"github.com/phrazzld/recap-api/internal/api"
)

// Poll defaults.
const (
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 120 * time.Second
)

// ErrPollTimeout is returned when a job is still running at the poll deadline.
var ErrPollTimeout = errors.New("timed out waiting for job")

// JobFailedError is returned when a polled job ends in the failed state.
type JobFailedError struct {
	JobID   string
	Message string
}

// Error implements the error interface.
func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// PollOptions controls PollUntilDone.
type PollOptions struct {
	// Interval between status requests. Defaults to DefaultPollInterval.
	Interval time.Duration
	// Timeout for the whole wait. Defaults to DefaultPollTimeout.
	Timeout time.Duration
	// OnUpdate is called with every job state that differs from the last
	// one seen, including the first and the terminal one.
	OnUpdate func(*api.JobResponse)
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultPollTimeout
	}
	return o
}

// PollUntilDone queries job id every interval until it completes, fails, or
// the timeout passes. It returns the result of a completed job, a
// *JobFailedError for a failed one, ErrPollTimeout at the deadline,
// ErrJobNotFound if the job disappears, and ctx.Err() if ctx is cancelled.
// Transient server errors are retried until the deadline.
func (c *Client) PollUntilDone(ctx context.Context, id string, opts PollOptions) (json.RawMessage, error) {
	opts = opts.withDefaults()

	pollCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	log := c.logger.With(slog.String("job_id", id))
	var (
		last   uint64
		seen   bool
		result json.RawMessage
	)

	err := retry.Do(pollCtx, retry.NewConstant(opts.Interval), func(ctx context.Context) error {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			if isRetryable(err) {
				log.Debug("poll request failed; retrying", slog.String("error", err.Error()))
				return retry.RetryableError(err)
			}
			return err
		}

		if sum := digest(job); !seen || sum != last {
			seen, last = true, sum
			if opts.OnUpdate != nil {
				opts.OnUpdate(job)
			}
		}

		switch job.Status {
		case "completed":
			result = job.Result
			return nil
		case "failed":
			return &JobFailedError{JobID: job.JobID, Message: job.Error}
		default:
			return retry.RetryableError(errStillRunning)
		}
	})

	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case pollCtx.Err() != nil:
		return nil, fmt.Errorf("%w %s after %s", ErrPollTimeout, id, opts.Timeout)
	default:
		return nil, err
	}
}

var errStillRunning = errors.New("job still running")

// isRetryable reports whether a failed status request is worth repeating.
// Context errors are left to the deadline checks in PollUntilDone.
func isRetryable(err error) bool {
	if errors.Is(err, ErrJobNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	// Transport failures such as a refused connection.
	return true
}

// digest identifies the observable state of a job. UpdatedAt is left out so
// heartbeats do not count as changes.
func digest(job *api.JobResponse) uint64 {
	d := xxhash.New()
	for _, s := range []string{job.Status, job.Phase, job.PhaseMessage, job.Error} {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}
	_, _ = d.Write(job.Result)
	return d.Sum64()
}
