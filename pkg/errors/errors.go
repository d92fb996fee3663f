// Package errors defines the error kinds the engine reports to callers and
// their mapping to HTTP statuses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared across layers.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrInternal       = errors.New("internal error")
)

// Stable error codes written to clients.
const (
	CodeNotFound    = "NOT_FOUND"
	CodeInvalid     = "INVALID_INPUT"
	CodeConflict    = "CONFLICT"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal    = "INTERNAL_ERROR"
)

type kind struct {
	sentinel error
	code     string
	status   int
}

// kinds is ordered; the first sentinel matched by errors.Is wins.
var kinds = []kind{
	{ErrNotFound, CodeNotFound, http.StatusNotFound},
	{ErrConflict, CodeConflict, http.StatusConflict},
	{ErrInvalidInput, CodeInvalid, http.StatusBadRequest},
	{ErrServiceUnavail, CodeUnavailable, http.StatusServiceUnavailable},
}

// AppError is an error with a stable code and an HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(sentinel error, message string) *AppError {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
		}
	}
	return &AppError{Code: CodeInternal, Message: message, Status: http.StatusInternalServerError, Err: sentinel}
}

// NotFound reports a missing tenant, voucher, rule or session.
func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// InvalidInput reports a malformed request.
func InvalidInput(message string) *AppError {
	return newAppError(ErrInvalidInput, message)
}

// Conflict reports a request that cannot proceed in the current state, such
// as redeeming a stack with nothing applicable.
func Conflict(message string) *AppError {
	return newAppError(ErrConflict, message)
}

// Unavailable reports a backing store or broker that cannot be reached.
func Unavailable(dependency string, err error) *AppError {
	return &AppError{
		Code:    CodeUnavailable,
		Message: dependency + " is unavailable",
		Status:  http.StatusServiceUnavailable,
		Err:     errors.Join(ErrServiceUnavail, err),
	}
}

// Internal creates a 500 error that hides err from clients.
func Internal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	status, _ := Classify(err)
	return status
}

// Classify returns the status and code for err. AppErrors carry their own;
// wrapped sentinels map through kinds; anything else is internal.
func Classify(err error) (status int, code string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Code
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}
