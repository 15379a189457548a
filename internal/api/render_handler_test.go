package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/bookrender/internal/api/shared"
	"github.com/phrazzld/bookrender/internal/domain"
	"github.com/phrazzld/bookrender/internal/render"
)

// MockRenderService is a configurable RenderService for handler tests.
type MockRenderService struct {
	CreateTaskFn func(ctx context.Context, book *domain.BookSpec, format string) (uuid.UUID, error)
	GetStatusFn  func(ctx context.Context, id uuid.UUID) render.Status
	StreamFn     func(ctx context.Context, id uuid.UUID, sink render.Sink) error

	createdBooks   []*domain.BookSpec
	createdFormats []string
}

func (m *MockRenderService) CreateTask(ctx context.Context, book *domain.BookSpec, format string) (uuid.UUID, error) {
	m.createdBooks = append(m.createdBooks, book)
	m.createdFormats = append(m.createdFormats, format)
	if m.CreateTaskFn != nil {
		return m.CreateTaskFn(ctx, book, format)
	}
	return fixedTaskID, nil
}

func (m *MockRenderService) GetStatus(ctx context.Context, id uuid.UUID) render.Status {
	if m.GetStatusFn != nil {
		return m.GetStatusFn(ctx, id)
	}
	return render.Status{State: domain.TaskStateFailed}
}

func (m *MockRenderService) Stream(ctx context.Context, id uuid.UUID, sink render.Sink) error {
	if m.StreamFn != nil {
		return m.StreamFn(ctx, id, sink)
	}
	return render.ErrResultUnavailable
}

var fixedTaskID = uuid.MustParse("22222222-2222-2222-2222-222222222222")

const sampleBook = `{"title":"T","items":[{"type":"article","title":"A"}]}`

func newTestRouter(svc RenderService) http.Handler {
	r := chi.NewRouter()
	NewRenderHandler(svc, "pdf", nil).RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestCreateRender(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		createErr      error
		expectedStatus int
		expectedErrMsg string
		expectedFormat string
	}{
		{
			name:           "created",
			body:           `{"format":"epub","book":` + sampleBook + `}`,
			expectedStatus: http.StatusAccepted,
			expectedFormat: "epub",
		},
		{
			name:           "default format",
			body:           `{"book":` + sampleBook + `}`,
			expectedStatus: http.StatusAccepted,
			expectedFormat: "pdf",
		},
		{
			name:           "invalid json",
			body:           `{"book":`,
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid request format",
		},
		{
			name:           "missing book",
			body:           `{"format":"pdf"}`,
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid Book: required field",
		},
		{
			name:           "book is not an object",
			body:           `{"book":[1,2]}`,
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Malformed book description",
		},
		{
			name:           "queue full",
			body:           `{"book":` + sampleBook + `}`,
			createErr:      render.ErrSchedulingFailed,
			expectedStatus: http.StatusServiceUnavailable,
			expectedErrMsg: "Rendering queue is full, try again later",
		},
		{
			name:           "store failure",
			body:           `{"book":` + sampleBook + `}`,
			createErr:      errors.New("connection refused"),
			expectedStatus: http.StatusInternalServerError,
			expectedErrMsg: "An unexpected error occurred",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &MockRenderService{}
			if tc.createErr != nil {
				svc.CreateTaskFn = func(context.Context, *domain.BookSpec, string) (uuid.UUID, error) {
					return uuid.Nil, tc.createErr
				}
			}

			rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/api/renders", tc.body)
			assert.Equal(t, tc.expectedStatus, rec.Code)

			if tc.expectedErrMsg != "" {
				assert.Equal(t, tc.expectedErrMsg, decodeError(t, rec))
				return
			}

			var resp CreateRenderResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, fixedTaskID, resp.ID)
			assert.Equal(t, domain.TaskStatePending, resp.State)
			assert.Equal(t, "/api/renders/"+fixedTaskID.String(), resp.StatusURL)

			require.Len(t, svc.createdFormats, 1)
			assert.Equal(t, tc.expectedFormat, svc.createdFormats[0])
			assert.Equal(t, "T", svc.createdBooks[0].Title)
		})
	}
}

func TestGetRenderStatus(t *testing.T) {
	svc := &MockRenderService{
		GetStatusFn: func(_ context.Context, id uuid.UUID) render.Status {
			if id != fixedTaskID {
				return render.Status{State: domain.TaskStateFailed}
			}
			return render.Status{
				State:              domain.TaskStateFinished,
				URL:                "/api/renders/" + id.String() + "/download",
				ContentType:        "application/pdf",
				ContentLength:      8,
				ContentDisposition: "inline; filename=T.pdf",
			}
		},
	}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet, "/api/renders/"+fixedTaskID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"state": "finished",
		"url": "/api/renders/22222222-2222-2222-2222-222222222222/download",
		"content_type": "application/pdf",
		"content_length": 8,
		"content_disposition": "inline; filename=T.pdf"
	}`, rec.Body.String())

	rec = doRequest(t, router, http.MethodGet, "/api/renders/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"failed"}`, rec.Body.String())

	rec = doRequest(t, router, http.MethodGet, "/api/renders/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid rendering task ID", decodeError(t, rec))
}

func streamPDF(_ context.Context, _ uuid.UUID, sink render.Sink) error {
	sink.SetHeader(render.StreamHeader{
		ContentType:        "application/pdf",
		ContentLength:      8,
		ContentDisposition: "inline; filename=T.pdf",
	})
	_, err := sink.Write([]byte("PDFBYTES"))
	return err
}

func TestDownloadRender(t *testing.T) {
	router := newTestRouter(&MockRenderService{StreamFn: streamPDF})

	rec := doRequest(t, router, http.MethodGet, "/api/renders/"+fixedTaskID.String()+"/download", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PDFBYTES", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "8", rec.Header().Get("Content-Length"))
	assert.Equal(t, "inline; filename=T.pdf", rec.Header().Get("Content-Disposition"))
}

func TestDownloadRenderUnavailable(t *testing.T) {
	router := newTestRouter(&MockRenderService{})

	rec := doRequest(t, router, http.MethodGet, "/api/renders/"+fixedTaskID.String()+"/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Rendering result is not available", decodeError(t, rec))
}

func TestDownloadRenderAbortedMidStream(t *testing.T) {
	router := newTestRouter(&MockRenderService{
		StreamFn: func(ctx context.Context, id uuid.UUID, sink render.Sink) error {
			_ = streamPDF(ctx, id, sink)
			return errors.New("read failed")
		},
	})

	rec := doRequest(t, router, http.MethodGet, "/api/renders/"+fixedTaskID.String()+"/download", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PDFBYTES", rec.Body.String())
}

func TestDownloadBookRender(t *testing.T) {
	svc := &MockRenderService{}
	router := newTestRouter(svc)

	form := url.Values{
		"command":  {"render"},
		"metabook": {sampleBook},
	}
	req := httptest.NewRequest(http.MethodPost, "/download-book", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"collection_id":"`+fixedTaskID.String()+`"}`, rec.Body.String())
	require.Len(t, svc.createdFormats, 1)
	assert.Equal(t, DefaultLegacyFormat, svc.createdFormats[0])
}

func TestDownloadBookRenderWithWriter(t *testing.T) {
	svc := &MockRenderService{}
	target := "/download-book?" + url.Values{
		"command":  {"render"},
		"writer":   {"epub"},
		"metabook": {sampleBook},
	}.Encode()

	rec := doRequest(t, newTestRouter(svc), http.MethodGet, target, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.createdFormats, 1)
	assert.Equal(t, "epub", svc.createdFormats[0])
}

func TestDownloadBookErrors(t *testing.T) {
	tests := []struct {
		name           string
		query          url.Values
		expectedErrMsg string
	}{
		{
			name:           "unknown command",
			query:          url.Values{"command": {"explode"}},
			expectedErrMsg: "Unknown command.",
		},
		{
			name:           "missing command",
			query:          url.Values{},
			expectedErrMsg: "Unknown command.",
		},
		{
			name:           "malformed metabook",
			query:          url.Values{"command": {"render"}, "metabook": {"{not json"}},
			expectedErrMsg: "Malformed metabook parameter.",
		},
		{
			name:           "missing metabook",
			query:          url.Values{"command": {"render"}},
			expectedErrMsg: "Malformed metabook parameter.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &MockRenderService{}
			rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/download-book?"+tc.query.Encode(), "")

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.expectedErrMsg, decodeError(t, rec))
			assert.Empty(t, svc.createdBooks, "no task may be created")
		})
	}
}

func TestDownloadBookRenderStatus(t *testing.T) {
	svc := &MockRenderService{
		GetStatusFn: func(_ context.Context, id uuid.UUID) render.Status {
			if id == fixedTaskID {
				return render.Status{State: domain.TaskStatePending}
			}
			return render.Status{State: domain.TaskStateFailed}
		},
	}
	router := newTestRouter(svc)

	rec := doRequest(t, router, http.MethodGet,
		"/download-book?command=render_status&collection_id="+fixedTaskID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"pending"}`, rec.Body.String())

	rec = doRequest(t, router, http.MethodGet, "/download-book?command=render_status&collection_id=17", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"failed"}`, rec.Body.String())
}

func TestDownloadBookStream(t *testing.T) {
	router := newTestRouter(&MockRenderService{StreamFn: streamPDF})

	rec := doRequest(t, router, http.MethodGet,
		"/download-book?stream=1&command=ignored&collection_id="+fixedTaskID.String(), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PDFBYTES", rec.Body.String())
	assert.Equal(t, "inline; filename=T.pdf", rec.Header().Get("Content-Disposition"))

	rec = doRequest(t, router, http.MethodGet, "/download-book?stream=1&collection_id=bogus", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, newTestRouter(&MockRenderService{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
