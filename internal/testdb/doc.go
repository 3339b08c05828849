// Package testdb provides migrated databases for tests.
//
// By default every call to Open creates a fresh SQLite file in the test's
// temporary directory, so store and service tests run without external
// services. Setting RECAP_TEST_DATABASE_URL runs the same tests against
// PostgreSQL instead.
package testdb
