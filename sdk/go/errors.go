package storageclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Standard errors returned by the SDK.
var (
	// ErrValidation indicates invalid input parameters.
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized indicates the owner id was missing or unknown.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates the file, folder or upload was not found.
	ErrNotFound = errors.New("not found")
	// ErrNameConflict indicates the folder already holds a file with that name.
	ErrNameConflict = errors.New("name conflict")
	// ErrUploadReset indicates the server dropped a partial upload; every chunk must be sent again.
	ErrUploadReset = errors.New("upload reset")
	// ErrChunkTooLarge indicates a chunk exceeded the server's maximum chunk size.
	ErrChunkTooLarge = errors.New("chunk too large")
	// ErrInsufficientStorage indicates the owner's quota cannot hold the file.
	ErrInsufficientStorage = errors.New("insufficient storage")
	// ErrRangeNotSatisfiable indicates the requested byte range is outside the file.
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	// ErrUnavailable indicates the server is shutting down or overloaded.
	ErrUnavailable = errors.New("service unavailable")
)

// APIError represents an error response from the server.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Code is the machine-readable error code, e.g. "NAME_CONFLICT".
	Code string
	// Message is the error message.
	Message string
	// Err is the matching sentinel error, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable,
		http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return true
	}
	return false
}

// ValidationError represents an input validation failure.
type ValidationError struct {
	// Field is the name of the invalid field.
	Field string
	// Message describes what's wrong.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap returns ErrValidation for errors.Is support.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ChunkedUploadError represents a failed chunk of an upload.
type ChunkedUploadError struct {
	// UploadID is the upload id, usable with UploadOptions.Resume.
	UploadID string
	// ChunkIndex is the chunk that failed, or -1.
	ChunkIndex int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ChunkedUploadError) Error() string {
	if e.ChunkIndex >= 0 {
		return fmt.Sprintf("chunked upload failed (upload_id=%s, chunk=%d): %v", e.UploadID, e.ChunkIndex, e.Err)
	}
	return fmt.Sprintf("chunked upload failed (upload_id=%s): %v", e.UploadID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ChunkedUploadError) Unwrap() error {
	return e.Err
}

// newAPIError creates an APIError from an error response.
func newAPIError(statusCode int, code, message string) *APIError {
	err := &APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
	if err.Message == "" {
		err.Message = http.StatusText(statusCode)
	}

	switch code {
	case "NAME_CONFLICT":
		err.Err = ErrNameConflict
	case "CHUNK_TOO_LARGE":
		err.Err = ErrChunkTooLarge
	case "UPLOAD_RESET":
		err.Err = ErrUploadReset
	case "INSUFFICIENT_STORAGE":
		err.Err = ErrInsufficientStorage
	case "RANGE_NOT_SATISFIABLE":
		err.Err = ErrRangeNotSatisfiable
	}
	if err.Err != nil {
		return err
	}

	// Map status codes to error types
	switch statusCode {
	case http.StatusBadRequest:
		err.Err = ErrValidation
	case http.StatusUnauthorized:
		err.Err = ErrUnauthorized
	case http.StatusNotFound:
		err.Err = ErrNotFound
	case http.StatusConflict:
		err.Err = ErrNameConflict
	case http.StatusRequestEntityTooLarge:
		err.Err = ErrChunkTooLarge
	case http.StatusRequestedRangeNotSatisfiable:
		err.Err = ErrRangeNotSatisfiable
	case http.StatusInsufficientStorage:
		err.Err = ErrInsufficientStorage
	case http.StatusServiceUnavailable:
		err.Err = ErrUnavailable
	}

	return err
}

// isRetryable reports whether err is worth another attempt: transport failures and
// temporary server errors, but not client errors or context cancellation.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var vErr *ValidationError
	return !errors.As(err, &vErr)
}
