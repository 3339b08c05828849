// Package gemini implements generation.Generator on Google's Gemini API.
//
// Each call asks the model for an application/json response, retries
// transient failures (rate limiting, 5xx, per-attempt timeouts) with
// exponential backoff, and classifies everything else into the sentinel
// errors of the generation package. Callers never see genai types.
package gemini
