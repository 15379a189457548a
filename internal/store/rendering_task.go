package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bookrender/internal/domain"
)

// RenderingTaskStore persists rendering task records.
//
// Terminal transitions are conditional: Finish and Fail only apply to a
// task that is still pending, so a record moves out of pending at most once
// no matter how many workers race on it.
type RenderingTaskStore interface {
	// Create saves a new pending task.
	// Returns domain validation errors if the task is invalid and
	// ErrDuplicate if a task with the same ID already exists.
	Create(ctx context.Context, task *domain.RenderingTask) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrRenderingTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.RenderingTask, error)

	// Finish moves a pending task to finished, recording the stash key of
	// the artifact and its display name.
	// Returns ErrRenderingTaskNotFound or ErrTransitionConflict.
	Finish(ctx context.Context, id uuid.UUID, resultKey, displayName string) error

	// Fail moves a pending task to failed.
	// Returns ErrRenderingTaskNotFound or ErrTransitionConflict.
	Fail(ctx context.Context, id uuid.UUID) error

	// ListStalePending returns the IDs of tasks that have been pending since
	// before the given time, oldest first.
	ListStalePending(ctx context.Context, before time.Time) ([]uuid.UUID, error)
}
