package gemini

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/recap-api/internal/config"
	"github.com/phrazzld/recap-api/internal/generation"
	"github.com/phrazzld/recap-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeAPI struct {
	mu        sync.Mutex
	calls     int
	prompts   []string
	responses []fakeResponse
}

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f *fakeAPI) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg == nil || cfg.ResponseMIMEType != "application/json" {
		return nil, errors.New("expected a JSON response config")
	}
	f.prompts = append(f.prompts, contents[0].Parts[0].Text)
	r := f.responses[min(f.calls, len(f.responses)-1)]
	f.calls++
	return r.resp, r.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		ModelVersion: "gemini-test-001",
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func newTestGenerator(t *testing.T, api contentAPI, retries int) *Generator {
	t.Helper()
	log, _ := logger.NewTestLogger()
	g, err := newGenerator(log, api, config.LLMConfig{
		GeminiAPIKey:      "test-key",
		ModelName:         "gemini-2.5-flash",
		MaxRetries:        retries,
		RetryDelaySeconds: 1,
		RequestTimeout:    time.Second,
	})
	require.NoError(t, err)
	g.baseDelay = time.Millisecond
	return g
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{responses: []fakeResponse{{resp: textResponse(`{"headline":"Late winner"}`)}}}
	g := newTestGenerator(t, api, 2)

	res, err := g.Generate(context.Background(), generation.Request{JobType: "recap", Prompt: "write it"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"headline":"Late winner"}`, string(res.Payload))
	assert.Equal(t, "gemini-test-001", res.Model)
	assert.Equal(t, []string{"write it"}, api.prompts)
}

func TestGenerate_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{responses: []fakeResponse{
		{err: genai.APIError{Code: 503, Status: "UNAVAILABLE"}},
		{err: genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}},
		{resp: textResponse(`[1,2,3]`)},
	}}
	g := newTestGenerator(t, api, 3)

	res, err := g.Generate(context.Background(), generation.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(res.Payload))
	assert.Equal(t, 3, api.calls)
}

func TestGenerate_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{responses: []fakeResponse{{err: genai.APIError{Code: 500, Status: "INTERNAL"}}}}
	g := newTestGenerator(t, api, 2)

	_, err := g.Generate(context.Background(), generation.Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
	assert.Equal(t, 3, api.calls, "one call plus two retries")
}

func TestGenerate_PermanentErrorsAreNotRetried(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		resp fakeResponse
		want error
	}{
		{"bad request", fakeResponse{err: genai.APIError{Code: 400}}, generation.ErrInvalidConfig},
		{"invalid json", fakeResponse{resp: textResponse(`{"unterminated"`)}, generation.ErrInvalidResponse},
		{"no candidates", fakeResponse{resp: &genai.GenerateContentResponse{}}, generation.ErrInvalidResponse},
		{"safety", fakeResponse{resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonSafety,
		}}}}, generation.ErrContentBlocked},
		{"prompt blocked", fakeResponse{resp: &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "OTHER"},
		}}, generation.ErrContentBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := &fakeAPI{responses: []fakeResponse{tt.resp}}
			g := newTestGenerator(t, api, 3)

			_, err := g.Generate(context.Background(), generation.Request{Prompt: "p"})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, api.calls)
		})
	}
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{responses: []fakeResponse{{resp: textResponse(`{}`)}}}
	g := newTestGenerator(t, api, 0)

	_, err := g.Generate(context.Background(), generation.Request{})
	assert.ErrorIs(t, err, generation.ErrGenerationFailed)
	assert.Zero(t, api.calls)
}

func TestGenerate_CancelledContext(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{responses: []fakeResponse{{resp: textResponse(`{}`)}}}
	g := newTestGenerator(t, api, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Generate(ctx, generation.Request{Prompt: "p"})
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
}

func TestNewGenerator_Validation(t *testing.T) {
	t.Parallel()
	log, _ := logger.NewTestLogger()

	_, err := NewGenerator(context.Background(), log, config.LLMConfig{ModelName: "m"})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = newGenerator(log, &fakeAPI{}, config.LLMConfig{})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = newGenerator(nil, &fakeAPI{}, config.LLMConfig{ModelName: "m"})
	assert.Error(t, err)
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		`{"a":1}`:                    `{"a":1}`,
		"```json\n{\"a\":1}\n```":    `{"a":1}`,
		"```\n[1]\n```":              `[1]`,
		"  \n```json{\"a\":1}```  ": `{"a":1}`,
	}
	for in, want := range tests {
		assert.Equal(t, want, stripCodeFence(in), "input %q", in)
	}
}
