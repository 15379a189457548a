//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/bookrender/internal/domain"
	"github.com/phrazzld/bookrender/internal/platform/postgres"
	"github.com/phrazzld/bookrender/internal/store"
	"github.com/phrazzld/bookrender/internal/testdb"
)

// TestPostgresRenderingTaskStore_Integration runs against the database
// named by DATABASE_URL.
func TestPostgresRenderingTaskStore_Integration(t *testing.T) {
	db := testdb.GetTestDBWithT(t)
	ctx := context.Background()
	s := postgres.NewPostgresRenderingTaskStore(db, nil)

	cleanup := func(id uuid.UUID) {
		t.Cleanup(func() { _, _ = db.Exec("DELETE FROM rendering_tasks WHERE id = $1", id) })
	}

	t.Run("lifecycle", func(t *testing.T) {
		task := domain.NewRenderingTask("pdf")
		require.NoError(t, s.Create(ctx, task))
		cleanup(task.ID)

		got, err := s.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatePending, got.State)

		require.NoError(t, s.Finish(ctx, task.ID, "k.pdf", "Book.pdf"))
		assert.ErrorIs(t, s.Fail(ctx, task.ID), store.ErrTransitionConflict)

		got, err = s.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateFinished, got.State)
		assert.Equal(t, "k.pdf", got.ResultKey)
		assert.Equal(t, "Book.pdf", got.DisplayName)
	})

	t.Run("concurrent transitions apply once", func(t *testing.T) {
		task := domain.NewRenderingTask("pdf")
		require.NoError(t, s.Create(ctx, task))
		cleanup(task.ID)

		var wg sync.WaitGroup
		results := make(chan error, 4)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- s.Fail(ctx, task.ID)
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, store.ErrTransitionConflict)
			}
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("stale pending", func(t *testing.T) {
		old := domain.NewRenderingTask("pdf")
		old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
		old.UpdatedAt = old.CreatedAt
		require.NoError(t, s.Create(ctx, old))
		cleanup(old.ID)

		fresh := domain.NewRenderingTask("pdf")
		require.NoError(t, s.Create(ctx, fresh))
		cleanup(fresh.ID)

		ids, err := s.ListStalePending(ctx, time.Now().UTC().Add(-time.Hour))
		require.NoError(t, err)
		assert.Contains(t, ids, old.ID)
		assert.NotContains(t, ids, fresh.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrRenderingTaskNotFound)
	})
}

// TestRenderingTaskSchema_Integration checks that the table constraints
// reject rows the domain would never produce.
func TestRenderingTaskSchema_Integration(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	tests := []struct {
		name      string
		state     string
		resultKey interface{}
	}{
		{"finished without result key", "finished", nil},
		{"failed with result key", "failed", "k.pdf"},
		{"unknown state", "cancelled", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
				_, err := tx.Exec(
					"INSERT INTO rendering_tasks (id, format, state, result_key) VALUES ($1, 'pdf', $2, $3)",
					uuid.New(), tc.state, tc.resultKey)
				require.Error(t, err)
				assert.ErrorIs(t, postgres.MapError(err), store.ErrInvalidEntity)
			})
		})
	}

	t.Run("duplicate id", func(t *testing.T) {
		testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
			id := uuid.New()
			_, err := tx.Exec("INSERT INTO rendering_tasks (id, format) VALUES ($1, 'pdf')", id)
			require.NoError(t, err)
			_, err = tx.Exec("INSERT INTO rendering_tasks (id, format) VALUES ($1, 'pdf')", id)
			assert.True(t, postgres.IsUniqueViolation(err))
			assert.ErrorIs(t, postgres.MapError(err), store.ErrDuplicate)
		})
	})
}
