package shared

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is the type of request context keys set by this package.
type ContextKey string

const (
	// TraceIDKey is the key for the trace ID in the request context.
	TraceIDKey ContextKey = "traceID"

	// TraceIDHeader carries the trace ID in both directions.
	TraceIDHeader = "X-Trace-ID"
)

// validTraceID bounds what a caller may supply as its own trace ID.
var validTraceID = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// SetTraceID adds a trace ID to the context. A well-formed incoming ID from
// an upstream caller is kept so logs correlate across services; otherwise
// a new one is generated.
func SetTraceID(ctx context.Context, incoming string) context.Context {
	id := incoming
	if !validTraceID.MatchString(id) {
		id = newTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, id)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// newTraceID returns a random UUID in its 32-character hex form.
func newTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
