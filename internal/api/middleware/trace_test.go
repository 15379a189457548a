package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/bookrender/internal/api/shared"
	"github.com/phrazzld/bookrender/internal/platform/logger"
)

func TestTraceMiddleware(t *testing.T) {
	log, logBuf := logger.GetTestLogger(t)

	var seenTraceID string
	handler := TraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTraceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Len(t, seenTraceID, 32)
	assert.Equal(t, seenTraceID, rec.Header().Get(TraceHeader))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	logger.AssertLogField(t, logBuf, "trace_id", seenTraceID)
	logger.AssertLogField(t, logBuf, "msg", "inside handler")
	logger.AssertLogField(t, logBuf, "status", float64(http.StatusTeapot))
}

func TestTraceMiddlewareReusesClientTraceID(t *testing.T) {
	var seenTraceID string
	handler := TraceMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTraceID = shared.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(TraceHeader, "client-trace")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "client-trace", seenTraceID)
	assert.Equal(t, "client-trace", rec.Header().Get(TraceHeader))
}
