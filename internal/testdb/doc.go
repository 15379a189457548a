// Package testdb provides database helpers for integration tests: locating
// the test database, migrating it, and running test bodies in a transaction
// that is always rolled back.
//
// Tests using it are skipped when no database URL is configured.
package testdb
