// Package task runs background work on a bounded pool of goroutines.
//
// Tasks are handed to a fixed-size channel and executed by a fixed number of
// workers, so at most WorkerCount generations run at once and a full queue
// is reported to the submitter instead of blocking it. The Runner also owns
// the ledger maintenance loop: at startup every job left active by a previous
// process is failed, and while running, stale active jobs are reaped and old
// terminal jobs are swept on a fixed interval.
package task
