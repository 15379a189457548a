package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bookrender/internal/domain"
	"github.com/phrazzld/bookrender/internal/store"
)

// RenderingTaskStore keeps rendering tasks in a map guarded by a mutex.
// Returned tasks are copies; callers cannot mutate stored records.
type RenderingTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]domain.RenderingTask
}

// NewRenderingTaskStore creates an empty store.
func NewRenderingTaskStore() *RenderingTaskStore {
	return &RenderingTaskStore{tasks: make(map[uuid.UUID]domain.RenderingTask)}
}

var _ store.RenderingTaskStore = (*RenderingTaskStore)(nil)

// Create implements store.RenderingTaskStore.Create
func (s *RenderingTaskStore) Create(_ context.Context, task *domain.RenderingTask) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: rendering task %s", store.ErrDuplicate, task.ID)
	}
	s.tasks[task.ID] = *task
	return nil
}

// GetByID implements store.RenderingTaskStore.GetByID
func (s *RenderingTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.RenderingTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrRenderingTaskNotFound
	}
	return &task, nil
}

// Finish implements store.RenderingTaskStore.Finish
func (s *RenderingTaskStore) Finish(_ context.Context, id uuid.UUID, resultKey, displayName string) error {
	return s.transition(id, func(task *domain.RenderingTask) error {
		return task.Finish(resultKey, displayName)
	})
}

// Fail implements store.RenderingTaskStore.Fail
func (s *RenderingTaskStore) Fail(_ context.Context, id uuid.UUID) error {
	return s.transition(id, func(task *domain.RenderingTask) error {
		return task.Fail()
	})
}

func (s *RenderingTaskStore) transition(id uuid.UUID, apply func(task *domain.RenderingTask) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return store.ErrRenderingTaskNotFound
	}

	if err := apply(&task); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("%w: %v", store.ErrTransitionConflict, err)
		}
		return err
	}

	s.tasks[id] = task
	return nil
}

// ListStalePending implements store.RenderingTaskStore.ListStalePending
func (s *RenderingTaskStore) ListStalePending(_ context.Context, before time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	stale := make([]domain.RenderingTask, 0)
	for _, task := range s.tasks {
		if task.State == domain.TaskStatePending && task.CreatedAt.Before(before) {
			stale = append(stale, task)
		}
	}
	s.mu.RUnlock()

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})

	ids := make([]uuid.UUID, len(stale))
	for i, task := range stale {
		ids[i] = task.ID
	}
	return ids, nil
}
