// Package generation defines the boundary between the job orchestrator and
// the external language-model service that produces structured JSON output.
// Implementations live under internal/platform; the orchestrator depends only
// on the Generator interface declared here.
package generation
