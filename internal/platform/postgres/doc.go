// Package postgres provides the PostgreSQL implementation of the
// store.RenderingTaskStore interface, together with connection setup and
// the embedded schema migrations applied through goose.
package postgres
