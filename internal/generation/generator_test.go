package generation_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/phrazzld/recap-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorFunc(t *testing.T) {
	t.Parallel()

	var got generation.Request
	var gen generation.Generator = generation.GeneratorFunc(
		func(_ context.Context, req generation.Request) (*generation.Result, error) {
			got = req
			return &generation.Result{Payload: json.RawMessage(`{"ok":true}`), Model: "fake"}, nil
		},
	)

	res, err := gen.Generate(context.Background(), generation.Request{JobType: "recap", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recap", got.JobType)
	assert.Equal(t, "fake", res.Model)
	assert.JSONEq(t, `{"ok":true}`, string(res.Payload))
}

func TestErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	all := []error{
		generation.ErrGenerationFailed,
		generation.ErrInvalidResponse,
		generation.ErrContentBlocked,
		generation.ErrTransientFailure,
		generation.ErrInvalidConfig,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
			}
		}
	}
}
