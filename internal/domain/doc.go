// Package domain contains the entities of the book rendering service:
// the rendering task and its state machine, and the book description
// submitted by clients.
//
// The package has no dependencies on storage, transport or the external
// converter. Invariants that must hold regardless of the storage backend
// (a result key exists if and only if the task is finished, terminal
// states are never left) are enforced here.
package domain
