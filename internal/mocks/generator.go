package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/phrazzld/recap-api/internal/generation"
)

// DefaultModel is the model name reported by MockGenerator results.
const DefaultModel = "mock-model"

// MockGenerator implements generation.Generator for testing.
type MockGenerator struct {
	// GenerateFn overrides the default response when set.
	GenerateFn func(ctx context.Context, req generation.Request) (*generation.Result, error)

	// Default response values
	Payload json.RawMessage
	Err     error

	mu       sync.Mutex
	requests []generation.Request
}

// Generate implements generation.Generator.
func (m *MockGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.GenerateFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &generation.Result{Payload: m.Payload, Model: DefaultModel}, nil
}

// CallCount returns how many times Generate was called.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request Generate received.
func (m *MockGenerator) Requests() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.Request(nil), m.requests...)
}

// Reset clears the call history.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// NewMockGeneratorWithPayload returns a generator that always answers with payload.
func NewMockGeneratorWithPayload(payload string) *MockGenerator {
	return &MockGenerator{Payload: json.RawMessage(payload)}
}

// NewMockGeneratorWithError returns a generator that always fails with err.
func NewMockGeneratorWithError(err error) *MockGenerator {
	return &MockGenerator{Err: err}
}

// MockGeneratorThatFails simulates a permanent generation failure.
func MockGeneratorThatFails() *MockGenerator {
	return NewMockGeneratorWithError(generation.ErrGenerationFailed)
}

// MockGeneratorWithTransientFailure simulates a failure that outlived its retries.
func MockGeneratorWithTransientFailure() *MockGenerator {
	return NewMockGeneratorWithError(generation.ErrTransientFailure)
}

// MockGeneratorWithContentBlocked simulates a safety block.
func MockGeneratorWithContentBlocked() *MockGenerator {
	return NewMockGeneratorWithError(generation.ErrContentBlocked)
}
