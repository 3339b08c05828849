package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/recap-api/internal/config"
	"github.com/phrazzld/recap-api/internal/generation"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

// contentAPI is the subset of genai.Models used by the generator.
type contentAPI interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Generator implements generation.Generator using the Gemini API.
type Generator struct {
	logger     *slog.Logger
	api        contentAPI
	model      string
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
}

// Ensure Generator implements generation.Generator interface
var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Gemini-backed generator from cfg.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newGenerator(logger, client.Models, cfg)
}

func newGenerator(logger *slog.Logger, api contentAPI, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if api == nil {
		return nil, fmt.Errorf("%w: content API cannot be nil", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := time.Duration(cfg.RetryDelaySeconds) * time.Second
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}

	return &Generator{
		logger:     logger.With(slog.String("component", "gemini_generator")),
		api:        api,
		model:      cfg.ModelName,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		timeout:    cfg.RequestTimeout,
	}, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	return g.model
}

func (g *Generator) backoff() retry.Backoff {
	b := retry.NewExponential(g.baseDelay)
	b = retry.WithJitterPercent(25, b)
	return retry.WithMaxRetries(uint64(g.maxRetries), b)
}

// Generate implements generation.Generator.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", generation.ErrGenerationFailed)
	}

	log := g.logger.With(slog.String("job_type", req.JobType), slog.String("model", g.model))
	attempt := 0

	result, err := retry.DoValue(ctx, g.backoff(), func(ctx context.Context) (*generation.Result, error) {
		attempt++
		log.DebugContext(ctx, "calling Gemini API",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", g.maxRetries+1))

		res, err := g.generateOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, generation.ErrTransientFailure) && ctx.Err() == nil {
			log.WarnContext(ctx, "transient Gemini API failure",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return nil, retry.RetryableError(err)
		}
		return nil, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, generation.ErrTransientFailure) {
			err = fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctxErr)
		}
		log.ErrorContext(ctx, "Gemini generation failed",
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()))
		return nil, err
	}

	log.InfoContext(ctx, "Gemini generation succeeded",
		slog.Int("attempts", attempt),
		slog.Int("payload_bytes", len(result.Payload)))
	return result, nil
}

func (g *Generator) generateOnce(ctx context.Context, req generation.Request) (*generation.Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.api.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, classifyError(err)
	}

	payload, err := extractJSON(resp)
	if err != nil {
		return nil, err
	}

	model := g.model
	if resp.ModelVersion != "" {
		model = resp.ModelVersion
	}
	return &generation.Result{Payload: payload, Model: model}, nil
}
