// Package errors maps domain failures to HTTP API errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/maruel/conclave/internal/archive"
	"github.com/maruel/conclave/internal/assets"
	"github.com/maruel/conclave/internal/storage"
	"github.com/maruel/conclave/internal/workspace"
)

// ErrorCode identifies the kind of failure in an API response.
type ErrorCode string

const (
	// ErrValidationFailed is returned when input data fails validation.
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrMissingField is returned when a required field is missing.
	ErrMissingField ErrorCode = "MISSING_FIELD"
	// ErrInvalidArchive is returned when an uploaded backup is rejected.
	ErrInvalidArchive ErrorCode = "INVALID_ARCHIVE"
	// ErrNotFound is returned when a record is not found.
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrFileNotFound is returned when a stored file is not found.
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	// ErrBusy is returned while a conversation turn is in flight.
	ErrBusy ErrorCode = "BUSY"
	// ErrPayloadTooLarge is returned when a request body exceeds the limit.
	ErrPayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrInternal is returned when an unexpected server error occurs.
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorWithStatus is an error that carries an HTTP status and an error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrNotFound, resource+" not found")
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrMissingField, "missing required field: "+fieldName).WithDetail("field", fieldName)
}

// InvalidArchive creates a 400 error for a rejected backup.
func InvalidArchive(err error) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrInvalidArchive, "invalid backup").Wrap(err)
}

// PayloadTooLarge creates a 413 error.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrPayloadTooLarge, "request body too large").WithDetail("limit", limit)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}

// FromError converts a domain error into an ErrorWithStatus.
//
// An error that already carries a status is returned as is. Unknown errors
// become 500.
func FromError(err error) ErrorWithStatus {
	var ews ErrorWithStatus
	if errors.As(err, &ews) {
		return ews
	}
	var verr validation.Errors
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewAPIError(http.StatusNotFound, ErrNotFound, err.Error()).Wrap(err)
	case errors.Is(err, assets.ErrNotFound):
		return NewAPIError(http.StatusNotFound, ErrFileNotFound, err.Error()).Wrap(err)
	case errors.Is(err, workspace.ErrBusy):
		return NewAPIError(http.StatusConflict, ErrBusy, err.Error()).Wrap(err)
	case errors.As(err, &verr):
		e := NewAPIError(http.StatusBadRequest, ErrValidationFailed, err.Error()).Wrap(err)
		for field, fe := range verr {
			e.WithDetail(field, fe.Error())
		}
		return e
	case errors.Is(err, workspace.ErrInvalidInput):
		return NewAPIError(http.StatusBadRequest, ErrValidationFailed, err.Error()).Wrap(err)
	case errors.Is(err, archive.ErrMissingManifest), errors.Is(err, archive.ErrUnsupportedVersion):
		return InvalidArchive(err)
	default:
		return InternalWithError("internal error", err)
	}
}
