// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrMalformedBookSpec is returned when a book description cannot be parsed.
	// It is raised synchronously, before any rendering task exists.
	ErrMalformedBookSpec = errors.New("malformed book description")

	// ErrInvalidTransition is returned when a rendering task is moved out of
	// a terminal state, or into a state it cannot reach.
	ErrInvalidTransition = errors.New("invalid rendering task state transition")

	// ErrEmptyTaskID is returned when a rendering task has a nil identifier.
	ErrEmptyTaskID = errors.New("rendering task ID cannot be empty")

	// ErrInvalidTaskState is returned when a task state is not one of the known values.
	ErrInvalidTaskState = errors.New("invalid rendering task state")

	// ErrEmptyResultKey is returned when a task is finished without a retrieval key.
	ErrEmptyResultKey = errors.New("finished rendering task requires a result key")

	// ErrUnexpectedResultKey is returned when a task that is not finished carries a result key.
	ErrUnexpectedResultKey = errors.New("result key is only allowed on finished rendering tasks")
)
