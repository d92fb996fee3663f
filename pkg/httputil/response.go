package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/utafrali/redeemables/pkg/errors"
	"github.com/utafrali/redeemables/pkg/logger"
	"github.com/utafrali/redeemables/pkg/validator"
)

// Response is the standard JSON envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of the envelope.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes data inside the standard envelope.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Data: data})
}

// WriteError maps err to a status and error code and writes it. Validation
// errors carry per-field messages. Server errors are logged with the
// request-scoped logger when one is present, else with fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{
			Code:      "VALIDATION_ERROR",
			Message:   "request validation failed",
			Fields:    valErr.Fields(),
			RequestID: requestID,
		}})
		return
	}

	status, code := apperrors.Classify(err)
	if status >= http.StatusInternalServerError {
		logServerError(r, err, fallback)
	}
	WriteJSON(w, status, Response{Error: &ErrorResponse{
		Code:      code,
		Message:   publicMessage(err, status),
		RequestID: requestID,
	}})
}

// publicMessage is the client-facing message for err. AppErrors carry their
// own; wrapped sentinels only leak detail for caller mistakes.
func publicMessage(err error, status int) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	switch status {
	case http.StatusBadRequest, http.StatusConflict:
		return err.Error()
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	default:
		return "an internal error occurred"
	}
}

func logServerError(r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	l.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}
