package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/bookrender/internal/assembler"
	"github.com/phrazzld/bookrender/internal/converter"
	"github.com/phrazzld/bookrender/internal/domain"
	"github.com/phrazzld/bookrender/internal/metadata"
	"github.com/phrazzld/bookrender/internal/platform/logger"
	"github.com/phrazzld/bookrender/internal/stash"
	"github.com/phrazzld/bookrender/internal/store"
	"github.com/phrazzld/bookrender/internal/task"
)

// TaskTypeRender identifies render jobs in the task runner logs.
const TaskTypeRender = "render_book"

// Assembler builds the document to convert.
type Assembler interface {
	Assemble(ctx context.Context, book *domain.BookSpec) (*assembler.Document, error)
}

// Converter runs the external conversion.
type Converter interface {
	Invoke(ctx context.Context, html, format string, md metadata.Metadata) (*converter.Output, error)
}

// Scheduler accepts background work without blocking.
type Scheduler interface {
	Submit(t task.Task) error
}

// Status is the client-visible state of a task. The download fields are set
// only when State is finished.
type Status struct {
	State              domain.TaskState `json:"state"`
	URL                string           `json:"url,omitempty"`
	ContentType        string           `json:"content_type,omitempty"`
	ContentLength      int64            `json:"content_length"`
	ContentDisposition string           `json:"content_disposition,omitempty"`
}

// MarshalJSON emits content_length for every finished task, zero-byte
// artifacts included, and omits it otherwise.
func (st Status) MarshalJSON() ([]byte, error) {
	type wire struct {
		State              domain.TaskState `json:"state"`
		URL                string           `json:"url,omitempty"`
		ContentType        string           `json:"content_type,omitempty"`
		ContentLength      *int64           `json:"content_length,omitempty"`
		ContentDisposition string           `json:"content_disposition,omitempty"`
	}
	out := wire{
		State:              st.State,
		URL:                st.URL,
		ContentType:        st.ContentType,
		ContentDisposition: st.ContentDisposition,
	}
	if st.State == domain.TaskStateFinished {
		length := st.ContentLength
		out.ContentLength = &length
	}
	return json.Marshal(out)
}

// StreamHeader describes the artifact written by Stream.
type StreamHeader struct {
	ContentType        string
	ContentLength      int64
	ContentDisposition string
}

// Sink receives a streamed artifact. SetHeader is called exactly once,
// before the first Write.
type Sink interface {
	io.Writer
	SetHeader(h StreamHeader)
}

// URLFunc builds the download URL reported for a finished task.
type URLFunc func(id uuid.UUID) string

// Service is the rendering task orchestrator.
type Service struct {
	store     store.RenderingTaskStore
	assembler Assembler
	converter Converter
	stash     stash.Stash
	scheduler Scheduler
	urlFor    URLFunc
	logger    *slog.Logger

	// inflight holds the IDs of tasks currently inside Render.
	inflight sync.Map
}

// NewService creates the orchestrator. All collaborators are required.
func NewService(
	taskStore store.RenderingTaskStore,
	asm Assembler,
	conv Converter,
	artifacts stash.Stash,
	scheduler Scheduler,
	urlFor URLFunc,
	log *slog.Logger,
) (*Service, error) {
	if taskStore == nil || asm == nil || conv == nil || artifacts == nil || scheduler == nil {
		return nil, errors.New("render service collaborators cannot be nil")
	}
	if urlFor == nil {
		urlFor = DownloadURL("")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:     taskStore,
		assembler: asm,
		converter: conv,
		stash:     artifacts,
		scheduler: scheduler,
		urlFor:    urlFor,
		logger:    log.With(slog.String("component", "render_service")),
	}, nil
}

// DownloadURL returns a URLFunc pointing at the REST download route under
// baseURL. An empty baseURL yields server-relative URLs.
func DownloadURL(baseURL string) URLFunc {
	baseURL = strings.TrimRight(baseURL, "/")
	return func(id uuid.UUID) string {
		return baseURL + "/api/renders/" + id.String() + "/download"
	}
}

// CreateTask records a pending task and schedules its render. It returns
// as soon as the render is queued.
//
// The format is not checked here; an unknown format fails the task later.
func (s *Service) CreateTask(ctx context.Context, book *domain.BookSpec, format string) (uuid.UUID, error) {
	if book == nil {
		return uuid.Nil, fmt.Errorf("%w: missing book", domain.ErrMalformedBookSpec)
	}

	rt := domain.NewRenderingTask(strings.ToLower(strings.TrimSpace(format)))
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("task_id", rt.ID.String()),
		slog.String("format", rt.Format))

	if err := s.store.Create(ctx, rt); err != nil {
		log.Error("failed to create rendering task", slog.String("error", err.Error()))
		return uuid.Nil, fmt.Errorf("failed to create rendering task: %w", err)
	}

	job := &renderJob{service: s, id: rt.ID, book: book, format: rt.Format}
	if err := s.scheduler.Submit(job); err != nil {
		log.Error("failed to schedule rendering task", slog.String("error", err.Error()))
		if failErr := s.store.Fail(ctx, rt.ID); failErr != nil {
			log.Error("failed to mark unscheduled task as failed", slog.String("error", failErr.Error()))
		}
		return uuid.Nil, fmt.Errorf("%w: %v", ErrSchedulingFailed, err)
	}

	log.Info("rendering task created", slog.Int("items", len(book.Items)))
	return rt.ID, nil
}

// GetStatus reports the state of a task. Unknown tasks, unreadable
// records and finished tasks whose artifact is gone all report failed.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) Status {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("task_id", id.String()))
	failed := Status{State: domain.TaskStateFailed}

	rt, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRenderingTaskNotFound) {
			log.Warn("status requested for unknown task")
		} else {
			log.Error("failed to load rendering task", slog.String("error", err.Error()))
		}
		return failed
	}

	switch rt.State {
	case domain.TaskStatePending:
		return Status{State: domain.TaskStatePending}
	case domain.TaskStateFailed:
		return failed
	case domain.TaskStateFinished:
		if rt.ResultKey == "" {
			log.Error("finished task has no result key")
			return failed
		}
		blob, err := s.stash.Get(ctx, rt.ResultKey)
		if err != nil {
			log.Error("failed to resolve stashed artifact",
				slog.String("result_key", rt.ResultKey),
				slog.String("error", err.Error()))
			return failed
		}
		return Status{
			State:              domain.TaskStateFinished,
			URL:                s.urlFor(id),
			ContentType:        blob.ContentType,
			ContentLength:      blob.Size,
			ContentDisposition: ContentDisposition(dispositionName(rt, blob)),
		}
	default:
		log.Error("rendering task has unknown state", slog.String("state", string(rt.State)))
		return failed
	}
}

// Stream writes the artifact of a finished task to sink.
// Returns ErrResultUnavailable when there is nothing to stream.
func (s *Service) Stream(ctx context.Context, id uuid.UUID, sink Sink) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("task_id", id.String()))

	rt, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRenderingTaskNotFound) {
			return fmt.Errorf("%w: task %s not found", ErrResultUnavailable, id)
		}
		return fmt.Errorf("%w: %v", ErrResultUnavailable, err)
	}

	if rt.State != domain.TaskStateFinished || rt.ResultKey == "" {
		return fmt.Errorf("%w: task %s is %s", ErrResultUnavailable, id, rt.State)
	}

	blob, err := s.stash.Get(ctx, rt.ResultKey)
	if err != nil {
		log.Error("failed to resolve stashed artifact",
			slog.String("result_key", rt.ResultKey),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrResultUnavailable, err)
	}

	rc, err := blob.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResultUnavailable, err)
	}
	defer func() { _ = rc.Close() }()

	sink.SetHeader(StreamHeader{
		ContentType:        blob.ContentType,
		ContentLength:      blob.Size,
		ContentDisposition: ContentDisposition(dispositionName(rt, blob)),
	})

	n, err := io.Copy(sink, rc)
	if err != nil {
		log.Warn("artifact stream interrupted",
			slog.Int64("bytes_written", n),
			slog.String("error", err.Error()))
		return fmt.Errorf("streaming artifact: %w", err)
	}

	log.Debug("artifact streamed", slog.Int64("bytes_written", n))
	return nil
}

// Render runs the pipeline for a pending task and performs its terminal
// transition. It is called by the scheduled job, never by clients.
//
// Any failure, including a panic, moves the task to failed; the pipeline
// error is returned for logging.
func (s *Service) Render(ctx context.Context, id uuid.UUID, book *domain.BookSpec, format string) (err error) {
	if _, running := s.inflight.LoadOrStore(id, struct{}{}); running {
		return fmt.Errorf("%w: %s", ErrAlreadyRendering, id)
	}
	defer s.inflight.Delete(id)

	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("task_id", id.String()),
		slog.String("format", format))
	ctx = logger.WithLogger(ctx, log)

	rt, err := s.store.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrRenderingTaskNotFound) {
			log.Error("failed to load rendering task", slog.String("error", err.Error()))
			s.fail(ctx, id)
		}
		return fmt.Errorf("loading rendering task: %w", err)
	}
	if rt.State != domain.TaskStatePending {
		log.Warn("skipping render of task that is not pending", slog.String("state", string(rt.State)))
		return fmt.Errorf("%w: %s is %s", ErrNotPending, id, rt.State)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("recovered from render panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("render panicked: %v", r)
			s.fail(ctx, id)
		}
	}()

	started := time.Now()
	log.Info("rendering started")

	resultKey, displayName, err := s.runPipeline(ctx, book, format)
	if err != nil {
		log.Error("rendering failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(started)))
		s.fail(ctx, id)
		return err
	}

	if err := s.store.Finish(ctx, id, resultKey, displayName); err != nil {
		log.Error("failed to record finished render",
			slog.String("result_key", resultKey),
			slog.String("error", err.Error()))
		if !errors.Is(err, store.ErrTransitionConflict) {
			s.fail(ctx, id)
		}
		return fmt.Errorf("recording finished render: %w", err)
	}

	log.Info("rendering finished",
		slog.String("result_key", resultKey),
		slog.String("display_name", displayName),
		slog.Duration("duration", time.Since(started)))
	return nil
}

// runPipeline assembles, converts and stashes the book. It returns the
// stash key and the display name of the artifact.
func (s *Service) runPipeline(ctx context.Context, book *domain.BookSpec, format string) (string, string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	doc, err := s.assembler.Assemble(ctx, book)
	if err != nil {
		return "", "", fmt.Errorf("assembling book: %w", err)
	}

	output, err := s.converter.Invoke(ctx, doc.HTML, format, doc.Metadata)
	if err != nil {
		return "", "", fmt.Errorf("converting book: %w", err)
	}
	defer func() {
		if rmErr := output.Remove(); rmErr != nil {
			log.Warn("failed to remove converted file", slog.String("error", rmErr.Error()))
		}
	}()

	key, err := s.stash.Put(ctx, output.Path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStashFailure, err)
	}

	return key, DisplayName(doc.Metadata.Get(assembler.MetadataTitle), output.Extension), nil
}

// fail moves the task to failed. A task that already left pending is left
// as it is.
func (s *Service) fail(ctx context.Context, id uuid.UUID) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if err := s.store.Fail(context.WithoutCancel(ctx), id); err != nil {
		if errors.Is(err, store.ErrTransitionConflict) {
			log.Warn("task already terminal, not marking failed")
			return
		}
		log.Error("failed to mark task as failed", slog.String("error", err.Error()))
	}
}

// SweepStalePending fails tasks that have been pending for longer than
// maxAge and are not being rendered by this process. It returns the number
// of tasks failed.
func (s *Service) SweepStalePending(ctx context.Context, maxAge time.Duration) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	ids, err := s.store.ListStalePending(ctx, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("listing stale pending tasks: %w", err)
	}

	swept := 0
	for _, id := range ids {
		if _, running := s.inflight.Load(id); running {
			continue
		}
		if err := s.store.Fail(ctx, id); err != nil {
			if !errors.Is(err, store.ErrTransitionConflict) {
				log.Error("failed to sweep stale task",
					slog.String("task_id", id.String()),
					slog.String("error", err.Error()))
			}
			continue
		}
		swept++
	}

	if swept > 0 {
		log.Warn("failed stale pending tasks", slog.Int("count", swept), slog.Duration("max_age", maxAge))
	}
	return swept, nil
}

// DisplayName forms the human-readable file name of an artifact from the
// book title and the file extension. Spaces become underscores. It is empty
// when either part is missing.
func DisplayName(title, extension string) string {
	extension = strings.TrimPrefix(extension, ".")
	if title == "" || extension == "" {
		return ""
	}
	return strings.ReplaceAll(title, " ", "_") + "." + extension
}

// ContentDisposition formats an inline Content-Disposition value for name.
// Non-ASCII names are encoded per RFC 2231.
func ContentDisposition(name string) string {
	if name == "" {
		return "inline"
	}
	if v := mime.FormatMediaType("inline", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "inline"
}

// dispositionName prefers the task's display name over the stash's own
// name for the blob.
func dispositionName(rt *domain.RenderingTask, blob *stash.Blob) string {
	if rt.DisplayName != "" {
		return rt.DisplayName
	}
	return blob.Name
}

// renderJob is the scheduled unit of work for one task.
type renderJob struct {
	service *Service
	id      uuid.UUID
	book    *domain.BookSpec
	format  string
}

func (j *renderJob) ID() uuid.UUID { return j.id }

func (j *renderJob) Type() string { return TaskTypeRender }

func (j *renderJob) Execute(ctx context.Context) error {
	return j.service.Render(ctx, j.id, j.book, j.format)
}
