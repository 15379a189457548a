package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/bookrender/internal/platform/logger"
)

func TestRespondWithJSON(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		data         interface{}
		expectedBody string
	}{
		{
			name:         "successful response",
			status:       http.StatusOK,
			data:         map[string]interface{}{"state": "pending"},
			expectedBody: `{"state":"pending"}`,
		},
		{
			name:         "accepted response",
			status:       http.StatusAccepted,
			data:         map[string]interface{}{},
			expectedBody: `{}`,
		},
		{
			name:         "nil response",
			status:       http.StatusOK,
			data:         nil,
			expectedBody: `null`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()

			RespondWithJSON(rec, req, tc.status, tc.data)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tc.expectedBody, rec.Body.String())
		})
	}
}

func TestRespondWithJSONEncodingError(t *testing.T) {
	log, logBuf := logger.GetTestLogger(t)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(logger.WithLogger(req.Context(), log))
	rec := httptest.NewRecorder()

	RespondWithJSON(rec, req, http.StatusOK, map[string]interface{}{"bad": make(chan int)})

	logger.AssertLogContains(t, logBuf, "failed to encode JSON response")
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(WithTraceID(req.Context(), "trace-123"))
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, http.StatusBadRequest, "Unknown command.")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Unknown command.", resp.Error)
	assert.Equal(t, "trace-123", resp.TraceID)
}

func TestRespondWithErrorNoTraceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, http.StatusNotFound, "Not found")

	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())
}

func TestRespondWithErrorAndLog(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		opts          []ResponseOption
		expectedLevel string
	}{
		{name: "server error", status: http.StatusServiceUnavailable, expectedLevel: "ERROR"},
		{name: "rate limited", status: http.StatusTooManyRequests, expectedLevel: "WARN"},
		{name: "client error", status: http.StatusBadRequest, expectedLevel: "DEBUG"},
		{
			name:          "elevated client error",
			status:        http.StatusBadRequest,
			opts:          []ResponseOption{WithElevatedLogLevel()},
			expectedLevel: "WARN",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			log, logBuf := logger.GetTestLogger(t)
			req := httptest.NewRequest(http.MethodPost, "/api/renders", nil)
			req = req.WithContext(logger.WithLogger(req.Context(), log))
			rec := httptest.NewRecorder()

			err := errors.New("dial postgres://bookrender:s3cret@db:5432/bookrender")
			RespondWithErrorAndLog(rec, req, tc.status, "Service unavailable", err, tc.opts...)

			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, `{"error":"Service unavailable"}`, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "postgres")

			logger.AssertLogField(t, logBuf, "level", tc.expectedLevel)
			logger.AssertLogField(t, logBuf, "status_code", float64(tc.status))
			assert.NotContains(t, logBuf.String(), "s3cret")
			logger.AssertLogContains(t, logBuf, "[REDACTED_CREDENTIAL]")
		})
	}
}
