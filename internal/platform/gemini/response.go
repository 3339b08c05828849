package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/recap-api/internal/generation"
	"google.golang.org/genai"
)

// classifyError maps an error from the Gemini client to a generation error.
// Rate limiting, server errors, and timeouts are transient.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %d %s", generation.ErrTransientFailure, apiErr.Code, apiErr.Status)
		case apiErr.Code == http.StatusBadRequest || apiErr.Code == http.StatusUnauthorized ||
			apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %d %s", generation.ErrInvalidConfig, apiErr.Code, apiErr.Status)
		default:
			return fmt.Errorf("%w: %d %s", generation.ErrGenerationFailed, apiErr.Code, apiErr.Status)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out", generation.ErrTransientFailure)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}

// extractJSON pulls the JSON document out of the first candidate.
func extractJSON(resp *genai.GenerateContentResponse) (json.RawMessage, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, fmt.Errorf("%w: no candidates", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: response blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty content", generation.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}

	text := stripCodeFence(sb.String())
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", generation.ErrInvalidResponse)
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("%w: output is not valid JSON", generation.ErrInvalidResponse)
	}
	return json.RawMessage(text), nil
}

// stripCodeFence removes a surrounding markdown code fence, which models
// sometimes emit even when asked for JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
