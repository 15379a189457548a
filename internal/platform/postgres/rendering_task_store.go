package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/bookrender/internal/domain"
	"github.com/phrazzld/bookrender/internal/platform/logger"
	"github.com/phrazzld/bookrender/internal/store"
)

const renderingTaskColumns = `id, format, state, result_key, display_name, created_at, updated_at`

// PostgresRenderingTaskStore implements the store.RenderingTaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresRenderingTaskStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRenderingTaskStore creates a new PostgreSQL rendering task store.
// If logger is nil, a default logger will be used.
func NewPostgresRenderingTaskStore(db *sql.DB, logger *slog.Logger) *PostgresRenderingTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresRenderingTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "rendering_task_store")),
	}
}

// Ensure PostgresRenderingTaskStore implements store.RenderingTaskStore interface
var _ store.RenderingTaskStore = (*PostgresRenderingTaskStore)(nil)

// Create implements store.RenderingTaskStore.Create
func (s *PostgresRenderingTaskStore) Create(ctx context.Context, task *domain.RenderingTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("rendering task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO rendering_tasks (` + renderingTaskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.Format,
		string(task.State),
		nullString(task.ResultKey),
		nullString(task.DisplayName),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create rendering task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return store.NewStoreError("rendering_task", "create", "insert failed", MapError(err))
	}

	log.Debug("rendering task created",
		slog.String("task_id", task.ID.String()),
		slog.String("format", task.Format))
	return nil
}

// GetByID implements store.RenderingTaskStore.GetByID
func (s *PostgresRenderingTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.RenderingTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := loadRenderingTask(ctx, s.db, id, false)
	if err != nil {
		if errors.Is(err, store.ErrRenderingTaskNotFound) {
			log.Debug("rendering task not found", slog.String("task_id", id.String()))
			return nil, store.ErrRenderingTaskNotFound
		}
		log.Error("failed to get rendering task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, store.NewStoreError("rendering_task", "get", "select failed", MapError(err))
	}

	return task, nil
}

// Finish implements store.RenderingTaskStore.Finish
func (s *PostgresRenderingTaskStore) Finish(
	ctx context.Context,
	id uuid.UUID,
	resultKey, displayName string,
) error {
	return s.transition(ctx, id, "finish", func(task *domain.RenderingTask) error {
		return task.Finish(resultKey, displayName)
	})
}

// Fail implements store.RenderingTaskStore.Fail
func (s *PostgresRenderingTaskStore) Fail(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, "fail", func(task *domain.RenderingTask) error {
		return task.Fail()
	})
}

// transition locks the row, applies the domain transition and writes the
// result back. A task that already left pending yields ErrTransitionConflict.
func (s *PostgresRenderingTaskStore) transition(
	ctx context.Context,
	id uuid.UUID,
	operation string,
	apply func(task *domain.RenderingTask) error,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		task, err := loadRenderingTask(ctx, tx, id, true)
		if err != nil {
			if errors.Is(err, store.ErrRenderingTaskNotFound) {
				return err
			}
			return MapError(err)
		}

		if err := apply(task); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return fmt.Errorf("%w: %v", store.ErrTransitionConflict, err)
			}
			return err
		}

		update := `
			UPDATE rendering_tasks
			SET state = $1, result_key = $2, display_name = $3, updated_at = $4
			WHERE id = $5
		`
		if _, err := tx.ExecContext(
			ctx,
			update,
			string(task.State),
			nullString(task.ResultKey),
			nullString(task.DisplayName),
			task.UpdatedAt,
			task.ID,
		); err != nil {
			return MapError(err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrRenderingTaskNotFound) || errors.Is(err, store.ErrTransitionConflict) {
			log.Warn("rendering task transition rejected",
				slog.String("task_id", id.String()),
				slog.String("operation", operation),
				slog.String("reason", err.Error()))
			return err
		}
		log.Error("rendering task transition failed",
			slog.String("task_id", id.String()),
			slog.String("operation", operation),
			slog.String("error", err.Error()))
		return store.NewStoreError("rendering_task", operation, "transition failed", err)
	}

	log.Debug("rendering task transitioned",
		slog.String("task_id", id.String()),
		slog.String("operation", operation))
	return nil
}

// ListStalePending implements store.RenderingTaskStore.ListStalePending
func (s *PostgresRenderingTaskStore) ListStalePending(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id
		FROM rendering_tasks
		WHERE state = $1 AND created_at < $2
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(domain.TaskStatePending), before)
	if err != nil {
		log.Error("failed to query stale pending tasks", slog.String("error", err.Error()))
		return nil, store.NewStoreError("rendering_task", "list_stale", "select failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, store.NewStoreError("rendering_task", "list_stale", "scan failed", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("rendering_task", "list_stale", "iteration failed", err)
	}

	return ids, nil
}

// loadRenderingTask reads one task through q, which is either the pool or an
// open transaction. With forUpdate the row stays locked until q commits.
func loadRenderingTask(ctx context.Context, q store.DBTX, id uuid.UUID, forUpdate bool) (*domain.RenderingTask, error) {
	query := `SELECT ` + renderingTaskColumns + ` FROM rendering_tasks WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	task, err := scanRenderingTask(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrRenderingTaskNotFound
	}
	return task, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRenderingTask(row rowScanner) (*domain.RenderingTask, error) {
	var (
		task        domain.RenderingTask
		state       string
		resultKey   sql.NullString
		displayName sql.NullString
	)

	if err := row.Scan(
		&task.ID,
		&task.Format,
		&state,
		&resultKey,
		&displayName,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	task.State = domain.TaskState(state)
	task.ResultKey = resultKey.String
	task.DisplayName = displayName.String
	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
