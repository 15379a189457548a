package task

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopTask() *Func {
	return &Func{
		TaskID:   uuid.New(),
		TaskType: "test",
		Fn:       func(ctx context.Context) error { return nil },
	}
}

func TestTaskQueue_EnqueueAndReceive(t *testing.T) {
	q := NewTaskQueue(2, nil)
	first, second := noopTask(), noopTask()

	require.NoError(t, q.Enqueue(first))
	require.NoError(t, q.Enqueue(second))
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, first.ID(), (<-q.GetChannel()).ID())
	assert.Equal(t, second.ID(), (<-q.GetChannel()).ID())
}

func TestTaskQueue_Full(t *testing.T) {
	q := NewTaskQueue(1, nil)

	require.NoError(t, q.Enqueue(noopTask()))
	assert.ErrorIs(t, q.Enqueue(noopTask()), ErrQueueFull)
}

func TestTaskQueue_Closed(t *testing.T) {
	q := NewTaskQueue(2, nil)
	queued := noopTask()
	require.NoError(t, q.Enqueue(queued))

	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Enqueue(noopTask()), ErrQueueClosed)

	// already queued tasks are still delivered
	got, ok := <-q.GetChannel()
	require.True(t, ok)
	assert.Equal(t, queued.ID(), got.ID())
	_, ok = <-q.GetChannel()
	assert.False(t, ok)
}

func TestTaskQueue_ConcurrentEnqueueAndClose(t *testing.T) {
	q := NewTaskQueue(8, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Enqueue(noopTask())
		}()
	}
	q.Close()
	wg.Wait()

	assert.ErrorIs(t, q.Enqueue(noopTask()), ErrQueueClosed)
}
