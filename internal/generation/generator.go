package generation

import (
	"context"
	"encoding/json"
)

// Request is one structured generation call.
type Request struct {
	// JobType is the pipeline job type the call belongs to, for logging.
	JobType string
	// Prompt is the fully rendered instruction text, including the input.
	Prompt string
	// ResponseSchema, when set, is the JSON schema the output must satisfy.
	// Implementations may pass it to the model as a hint; callers validate
	// the output themselves.
	ResponseSchema json.RawMessage
}

// Result is the raw output of a successful generation.
type Result struct {
	// Payload is the JSON document returned by the model.
	Payload json.RawMessage
	// Model identifies what produced the payload, recorded as cache provenance.
	Model string
}

// Generator produces a JSON document for a prompt.
//
// Implementations must honor ctx cancellation and return one of the errors
// declared in this package (possibly wrapped) on failure.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (*Result, error)

// Generate calls f(ctx, req).
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}
