package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/bookrender/internal/assembler"
	"github.com/phrazzld/bookrender/internal/config"
	"github.com/phrazzld/bookrender/internal/converter"
	"github.com/phrazzld/bookrender/internal/metadata"
	"github.com/phrazzld/bookrender/internal/platform/memory"
	"github.com/phrazzld/bookrender/internal/platform/pages"
	"github.com/phrazzld/bookrender/internal/platform/postgres"
	"github.com/phrazzld/bookrender/internal/render"
	"github.com/phrazzld/bookrender/internal/stash"
	"github.com/phrazzld/bookrender/internal/store"
	"github.com/phrazzld/bookrender/internal/task"
)

// application holds the shared dependencies and owns their shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore     store.RenderingTaskStore
	taskRunner    *task.TaskRunner
	renderService *render.Service
}

// newApplication builds every component from cfg and starts the task
// runner. The caller must eventually call cleanup, which Run does.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	switch cfg.Database.Driver {
	case "postgres":
		app.db, err = postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, 5*time.Second)
		if err != nil {
			return nil, err
		}
		app.taskStore = postgres.NewPostgresRenderingTaskStore(app.db, logger)
	case "memory":
		logger.Warn("using in-memory task store, tasks are lost on restart")
		app.taskStore = memory.NewRenderingTaskStore()
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	artifacts, err := stash.NewFileStash(cfg.Stash.Root, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize stash: %w", err)
	}

	rules, err := metadata.CompileRules(cfg.Render.MetadataPatterns)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to compile metadata patterns: %w", err)
	}
	asm := assembler.New(pages.NewSource(cfg.Pages.Dir, logger), assembler.Config{
		CanonicalOrigin: cfg.Render.CanonicalOrigin,
		Rules:           rules,
		Defaults:        cfg.Render.DefaultMetadata,
	}, logger)

	formats := make(map[string]converter.Format, len(cfg.Render.Formats))
	for name, f := range cfg.Render.Formats {
		formats[name] = converter.Format{Command: f.Command, Extension: f.Extension}
	}
	invoker, err := converter.NewInvoker(converter.Config{
		Formats: formats,
		WorkDir: cfg.Render.TempDir,
		Timeout: cfg.Render.Timeout(),
	}, converter.NewExecRunner(), logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize converter: %w", err)
	}
	logger.Info("converter initialized", "formats", invoker.Formats())

	app.taskRunner = task.NewTaskRunner(task.TaskRunnerConfig{
		WorkerCount: cfg.Task.WorkerCount,
		QueueSize:   cfg.Task.QueueSize,
	}, logger)

	app.renderService, err = render.NewService(
		app.taskStore,
		asm,
		invoker,
		artifacts,
		app.taskRunner,
		render.DownloadURL(cfg.Server.PublicURL),
		logger,
	)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create render service: %w", err)
	}

	if maxAge := cfg.Task.StalePendingAge(); maxAge > 0 {
		app.taskRunner.AddMonitor(task.Monitor{
			Name:     "stale_pending_sweeper",
			Interval: cfg.Task.StaleCheckInterval(),
			Run: func(ctx context.Context) {
				if _, err := app.renderService.SweepStalePending(ctx, maxAge); err != nil {
					logger.Error("stale task sweep failed", "error", err)
				}
			},
		})
		logger.Info("stale pending sweeper enabled", "max_age", maxAge)
	}

	app.taskRunner.Start()

	logger.Info("application initialized successfully")
	return app, nil
}

// Run serves HTTP until ctx is canceled, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup stops the task runner, letting queued renders finish within
// the shutdown timeout, then closes the database.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := app.taskRunner.Stop(ctx); err != nil {
			app.logger.Warn("task runner did not drain before shutdown timeout", "error", err)
		}
		cancel()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
