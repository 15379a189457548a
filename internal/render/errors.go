package render

import "errors"

var (
	// ErrResultUnavailable is returned by Stream when the task is unknown,
	// not finished, or its artifact can no longer be resolved.
	ErrResultUnavailable = errors.New("rendering result is unavailable")

	// ErrStashFailure marks a render that converted successfully but whose
	// artifact could not be stored.
	ErrStashFailure = errors.New("failed to stash rendered artifact")

	// ErrSchedulingFailed is returned by CreateTask when the background
	// render could not be queued. The task record is failed before returning.
	ErrSchedulingFailed = errors.New("rendering task could not be scheduled")

	// ErrAlreadyRendering is returned by Render when the same task is
	// already being rendered in this process.
	ErrAlreadyRendering = errors.New("rendering task is already running")

	// ErrNotPending is returned by Render for a task that already reached a
	// terminal state.
	ErrNotPending = errors.New("rendering task is not pending")
)
