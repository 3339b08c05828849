// Package mocks provides shared test doubles.
//
// Use MockGenerator wherever a generation.Generator is needed without
// calling a real model:
//
//	gen := mocks.NewMockGeneratorWithPayload(`{"headline":"Hawks win","body":"..."}`)
//	orch, err := service.NewOrchestrator(db, jobs, results, registry, gen, time.Minute, logger)
//	...
//	assert.Equal(t, 1, gen.CallCount())
package mocks
