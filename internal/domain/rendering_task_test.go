package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderingTask(t *testing.T) {
	t.Parallel()

	task := NewRenderingTask("pdf")

	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, "pdf", task.Format)
	assert.Equal(t, TaskStatePending, task.State)
	assert.Empty(t, task.ResultKey)
	assert.Empty(t, task.DisplayName)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
	require.NoError(t, task.Validate())
}

func TestRenderingTaskFinish(t *testing.T) {
	t.Parallel()

	task := NewRenderingTask("epub")
	require.NoError(t, task.Finish("abc.epub", "My_Book.epub"))

	assert.Equal(t, TaskStateFinished, task.State)
	assert.Equal(t, "abc.epub", task.ResultKey)
	assert.Equal(t, "My_Book.epub", task.DisplayName)
	assert.NoError(t, task.Validate())

	// Terminal states are never left
	err := task.Fail()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, TaskStateFinished, task.State)

	err = task.Finish("other", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "abc.epub", task.ResultKey)
}

func TestRenderingTaskFinishRequiresKey(t *testing.T) {
	t.Parallel()

	task := NewRenderingTask("pdf")
	err := task.Finish("", "name.pdf")

	assert.ErrorIs(t, err, ErrEmptyResultKey)
	assert.Equal(t, TaskStatePending, task.State)
}

func TestRenderingTaskFail(t *testing.T) {
	t.Parallel()

	task := NewRenderingTask("pdf")
	require.NoError(t, task.Fail())
	assert.Equal(t, TaskStateFailed, task.State)
	assert.NoError(t, task.Validate())

	assert.ErrorIs(t, task.Finish("key", ""), ErrInvalidTransition)
	assert.ErrorIs(t, task.Fail(), ErrInvalidTransition)
}

func TestRenderingTaskValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(task *RenderingTask)
		wantErr error
	}{
		{
			name:    "nil id",
			mutate:  func(task *RenderingTask) { task.ID = uuid.Nil },
			wantErr: ErrEmptyTaskID,
		},
		{
			name:    "unknown state",
			mutate:  func(task *RenderingTask) { task.State = "processing" },
			wantErr: ErrInvalidTaskState,
		},
		{
			name:    "finished without key",
			mutate:  func(task *RenderingTask) { task.State = TaskStateFinished },
			wantErr: ErrEmptyResultKey,
		},
		{
			name:    "pending with key",
			mutate:  func(task *RenderingTask) { task.ResultKey = "abc" },
			wantErr: ErrUnexpectedResultKey,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task := NewRenderingTask("pdf")
			tc.mutate(task)
			assert.ErrorIs(t, task.Validate(), tc.wantErr)
		})
	}
}

func TestTaskStateIsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, TaskStatePending.IsTerminal())
	assert.True(t, TaskStateFinished.IsTerminal())
	assert.True(t, TaskStateFailed.IsTerminal())
	assert.False(t, TaskState("bogus").IsValid())
}
