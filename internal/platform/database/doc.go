// Package database owns the SQL side of the job ledger and result cache.
//
// It opens PostgreSQL (through pgx's database/sql driver) or an embedded
// SQLite file (through modernc.org/sqlite), applies the embedded goose
// migrations for the selected dialect, and provides the JobStore and
// ResultStore implementations. Every statement is written once with $N
// placeholders that are numbered in order of appearance, which both
// drivers bind positionally.
package database
