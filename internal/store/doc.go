// Package store defines the persistence contracts for the job ledger and the
// per-stage result cache. The interfaces keep the coordinator and
// orchestrator independent of the SQL dialect underneath.
package store
