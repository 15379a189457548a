package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/phrazzld/bookrender/internal/api/shared"
	"github.com/phrazzld/bookrender/internal/domain"
	"github.com/phrazzld/bookrender/internal/platform/logger"
	"github.com/phrazzld/bookrender/internal/render"
)

// DefaultLegacyFormat is the writer used by /download-book when the client
// names none.
const DefaultLegacyFormat = "rl"

// RenderService is the part of the render orchestrator the handlers use.
type RenderService interface {
	CreateTask(ctx context.Context, book *domain.BookSpec, format string) (uuid.UUID, error)
	GetStatus(ctx context.Context, id uuid.UUID) render.Status
	Stream(ctx context.Context, id uuid.UUID, sink render.Sink) error
}

// RenderHandler serves rendering task requests.
type RenderHandler struct {
	service       RenderService
	defaultFormat string
	validator     *validator.Validate
	logger        *slog.Logger
}

// NewRenderHandler creates a RenderHandler. defaultFormat is used by the
// REST API when a request names no format.
func NewRenderHandler(service RenderService, defaultFormat string, log *slog.Logger) *RenderHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RenderHandler{
		service:       service,
		defaultFormat: defaultFormat,
		validator:     validator.New(),
		logger:        log.With(slog.String("component", "render_handler")),
	}
}

// CreateRender handles POST /api/renders.
func (h *RenderHandler) CreateRender(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateRenderRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		if errors.Is(err, shared.ErrEmptyBody) {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	book, err := domain.ParseBookSpec(req.Book)
	if err != nil {
		HandleAPIError(w, r, err, "Malformed book description")
		return
	}

	format := req.Format
	if format == "" {
		format = h.defaultFormat
	}

	id, err := h.service.CreateTask(r.Context(), book, format)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	log.Debug("rendering task accepted", slog.String("task_id", id.String()), slog.String("format", format))
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateRenderResponse{
		ID:        id,
		State:     domain.TaskStatePending,
		StatusURL: "/api/renders/" + id.String(),
	})
}

// GetRenderStatus handles GET /api/renders/{id}. Unknown tasks report
// failed, never 404.
func (h *RenderHandler) GetRenderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, h.service.GetStatus(r.Context(), id))
}

// DownloadRender handles GET /api/renders/{id}/download.
func (h *RenderHandler) DownloadRender(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.stream(w, r, id)
}

// DownloadBook handles the single-endpoint API at /download-book.
//
// With stream=1 the artifact of collection_id is streamed. Otherwise
// command selects the operation: render creates a task from the metabook
// and writer parameters, render_status reports on collection_id.
func (h *RenderHandler) DownloadBook(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	if err := r.ParseForm(); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request parameters", err)
		return
	}

	if isTruthy(r.Form.Get("stream")) {
		id, err := uuid.Parse(r.Form.Get("collection_id"))
		if err != nil {
			HandleAPIError(w, r, render.ErrResultUnavailable, "")
			return
		}
		h.stream(w, r, id)
		return
	}

	command := r.Form.Get("command")
	log.Debug("received download-book request",
		slog.String("command", command),
		slog.String("collection_id", r.Form.Get("collection_id")))

	switch command {
	case "render_status":
		// An unparsable ID is reported like any unknown task
		id, _ := uuid.Parse(r.Form.Get("collection_id"))
		shared.RespondWithJSON(w, r, http.StatusOK, h.service.GetStatus(r.Context(), id))

	case "render":
		format := r.Form.Get("writer")
		if format == "" {
			format = DefaultLegacyFormat
		}

		book, err := domain.ParseBookSpec([]byte(r.Form.Get("metabook")))
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}

		id, err := h.service.CreateTask(r.Context(), book, format)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithJSON(w, r, http.StatusOK, LegacyRenderResponse{CollectionID: id})

	default:
		HandleAPIError(w, r, ErrUnknownCommand, "")
	}
}

// Health handles GET /health.
func (h *RenderHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *RenderHandler) stream(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	sink := &responseSink{w: w}
	if err := h.service.Stream(r.Context(), id, sink); err != nil {
		if sink.started {
			// Headers are already on the wire; the client sees a short body.
			logger.FromContextOrDefault(r.Context(), h.logger).Warn("artifact stream aborted",
				slog.String("task_id", id.String()),
				slog.String("error", err.Error()))
			return
		}
		HandleAPIError(w, r, err, "")
	}
}

// responseSink adapts an http.ResponseWriter to render.Sink.
type responseSink struct {
	w       http.ResponseWriter
	started bool
}

func (s *responseSink) SetHeader(h render.StreamHeader) {
	header := s.w.Header()
	if h.ContentType != "" {
		header.Set("Content-Type", h.ContentType)
	}
	if h.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(h.ContentLength, 10))
	}
	if h.ContentDisposition != "" {
		header.Set("Content-Disposition", h.ContentDisposition)
	}
	header.Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

func (s *responseSink) Write(p []byte) (int, error) {
	s.started = true
	return s.w.Write(p)
}
