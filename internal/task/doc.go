// Package task runs background work off the request path: a bounded
// in-memory queue, a fixed pool of workers draining it, and an optional
// periodic monitor. Submission never blocks; a full queue is reported to the
// caller instead.
package task
