package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of a rendering task
type TaskState string

// Possible rendering task states
const (
	TaskStatePending  TaskState = "pending"
	TaskStateFinished TaskState = "finished"
	TaskStateFailed   TaskState = "failed"
)

// IsValid reports whether s is one of the known task states.
func (s TaskState) IsValid() bool {
	switch s {
	case TaskStatePending, TaskStateFinished, TaskStateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateFinished || s == TaskStateFailed
}

// RenderingTask is one asynchronous conversion of a book into a downloadable
// artifact. It is created in the pending state and transitions exactly once,
// to either finished or failed.
type RenderingTask struct {
	ID          uuid.UUID `json:"id"`
	Format      string    `json:"format"`
	State       TaskState `json:"state"`
	ResultKey   string    `json:"result_key,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewRenderingTask creates a pending rendering task for the given output format.
// The format is not checked against the configured converters here: an
// unknown format is a rendering failure, not a creation failure.
func NewRenderingTask(format string) *RenderingTask {
	now := time.Now().UTC()
	return &RenderingTask{
		ID:        uuid.New(),
		Format:    format,
		State:     TaskStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the invariants of the task.
func (t *RenderingTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if !t.State.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskState, t.State)
	}

	if t.State == TaskStateFinished && t.ResultKey == "" {
		return ErrEmptyResultKey
	}

	if t.State != TaskStateFinished && t.ResultKey != "" {
		return ErrUnexpectedResultKey
	}

	return nil
}

// Finish moves a pending task to the finished state.
func (t *RenderingTask) Finish(resultKey, displayName string) error {
	if t.State != TaskStatePending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, TaskStateFinished)
	}

	if resultKey == "" {
		return ErrEmptyResultKey
	}

	t.State = TaskStateFinished
	t.ResultKey = resultKey
	t.DisplayName = displayName
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves a pending task to the failed state.
func (t *RenderingTask) Fail() error {
	if t.State != TaskStatePending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, TaskStateFailed)
	}

	t.State = TaskStateFailed
	t.ResultKey = ""
	t.DisplayName = ""
	t.UpdatedAt = time.Now().UTC()
	return nil
}
