package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/redeemables/pkg/errors"
	"github.com/utafrali/redeemables/pkg/logger"
	"github.com/utafrali/redeemables/pkg/validator"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})), &buf
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteData_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusCreated, map[string]string{"tracking_id": "track_1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"tracking_id":"track_1"}}`, rec.Body.String())
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
		logged bool
	}{
		{"app not found", apperrors.NotFound("tenant", "tnt_x"), http.StatusNotFound, "NOT_FOUND", "tenant with id tnt_x not found", false},
		{"app invalid", apperrors.InvalidInput("redeemables must not be empty"), http.StatusBadRequest, "INVALID_INPUT", "redeemables must not be empty", false},
		{"app internal", apperrors.Internal(errors.New("disk")), http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", true},
		{"sentinel not found", fmt.Errorf("get: %w", apperrors.ErrNotFound), http.StatusNotFound, "NOT_FOUND", "resource not found", false},
		{"sentinel conflict", apperrors.ErrConflict, http.StatusConflict, "CONFLICT", "conflict", false},
		{"sentinel unavailable", apperrors.ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service unavailable", true},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, buf := captureLogger()
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodPost, "/api/v1/validations", nil), tc.err, l)

			assert.Equal(t, tc.status, rec.Code)
			resp := decodeBody(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.Equal(t, tc.msg, resp.Error.Message)
			assert.Equal(t, tc.logged, buf.Len() > 0)
		})
	}
}

func TestWriteError_ValidationFields(t *testing.T) {
	type body struct {
		ID string `json:"id" validate:"required"`
	}
	err := validator.Validate(body{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), err, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, map[string]string{"id": "is required"}, resp.Error.Fields)
}

func TestWriteError_RequestID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-123")
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	WriteError(rec, req, apperrors.ErrNotFound, nil)
	resp := decodeBody(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "corr-123", resp.Error.RequestID)

	rec = httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), apperrors.ErrNotFound, nil)
	assert.NotContains(t, rec.Body.String(), "request_id")
}

func TestWriteError_PrefersRequestLogger(t *testing.T) {
	scoped, scopedBuf := captureLogger()
	fallback, fallbackBuf := captureLogger()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logger.NewContext(req.Context(), scoped))

	WriteError(httptest.NewRecorder(), req, errors.New("boom"), fallback)
	assert.NotEmpty(t, scopedBuf.String())
	assert.Empty(t, fallbackBuf.String())
}
