// Package service contains the application use cases that sit between the
// HTTP layer and the stores.
//
// Two components live here:
//
//  1. Coordinator is the per-request entry point. It validates input,
//     answers from the result cache when it can, joins an in-flight job for
//     the same input, reconciles stale jobs, and otherwise creates exactly
//     one job and hands it to the task runner.
//
//  2. Orchestrator drives a single job through its phases: it validates the
//     input, calls the generator while keeping the job alive with a
//     heartbeat, checks the output, and commits the cache entry and the job
//     completion in one transaction. Every failure, including a panic, is
//     recorded on the job instead of being returned to the submitter.
//
// Services receive their stores, registry, and runner through constructor
// injection and depend only on interfaces from internal/store.
package service
