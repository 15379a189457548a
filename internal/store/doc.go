// Package store defines the persistence contract for rendering tasks.
// Implementations live under internal/platform (postgres, memory); the
// render service only depends on the interfaces declared here.
package store
