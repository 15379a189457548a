package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount: 2,
		QueueSize:   100,
	}
}

// Monitor is a function run periodically while the runner is started.
type Monitor struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// TaskRunner wires a TaskQueue to a WorkerPool and runs periodic monitors.
type TaskRunner struct {
	queue      *TaskQueue
	pool       *WorkerPool
	monitors   []Monitor
	ctx        context.Context
	cancelFunc context.CancelFunc
	monitorWG  sync.WaitGroup
	logger     *slog.Logger
	stopOnce   sync.Once
}

// NewTaskRunner creates a new TaskRunner
func NewTaskRunner(config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "task_runner")

	ctx, cancel := context.WithCancel(context.Background())
	queue := NewTaskQueue(config.QueueSize, logger)
	poolConfig := DefaultWorkerPoolConfig()
	if config.WorkerCount > 0 {
		poolConfig.WorkerCount = config.WorkerCount
	}
	pool := NewWorkerPool(context.Background(), queue, poolConfig, logger)
	pool.SetErrorHandler(func(task Task, err error) {
		logger.Error("task execution failed",
			"task_id", task.ID(),
			"task_type", task.Type(),
			"error", err)
	})

	return &TaskRunner{
		queue:      queue,
		pool:       pool,
		ctx:        ctx,
		cancelFunc: cancel,
		logger:     logger,
	}
}

// SetErrorHandler replaces the handler called when a task fails.
// It must be called before Start.
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.pool.SetErrorHandler(handler)
}

// AddMonitor registers a periodic function. It must be called before Start.
// Monitors with a non-positive interval are ignored.
func (r *TaskRunner) AddMonitor(m Monitor) {
	if m.Interval <= 0 || m.Run == nil {
		r.logger.Debug("monitor disabled", "monitor", m.Name)
		return
	}
	r.monitors = append(r.monitors, m)
}

// Submit adds a task to the queue without blocking.
// Returns ErrQueueFull or ErrQueueClosed when the task cannot be accepted.
func (r *TaskRunner) Submit(task Task) error {
	if err := r.queue.Enqueue(task); err != nil {
		return fmt.Errorf("failed to submit task %s: %w", task.ID(), err)
	}
	return nil
}

// Start begins processing tasks and runs the registered monitors.
func (r *TaskRunner) Start() {
	r.pool.Start()

	for _, m := range r.monitors {
		r.monitorWG.Add(1)
		go r.runMonitor(m)
	}
}

// Stop closes the queue, lets the workers finish every task already
// accepted, and stops the monitors. It returns ctx.Err() if ctx ends
// before the workers are done.
func (r *TaskRunner) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.cancelFunc()
		r.queue.Close()
	})
	r.monitorWG.Wait()

	done := make(chan struct{})
	go func() {
		r.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("task runner stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("task runner stop timed out", "queued", r.queue.Len())
		return ctx.Err()
	}
}

// runMonitor calls m.Run every m.Interval until the runner stops.
func (r *TaskRunner) runMonitor(m Monitor) {
	defer r.monitorWG.Done()

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.logger.Debug("running monitor", "monitor", m.Name)
			m.Run(r.ctx)
		}
	}
}
