// Package handlers implements the HTTP endpoints of the storage server.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Mikkel102454/storage-selfhosted/internal/middleware"
	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
)

// sendError sends a JSON error response
func sendError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := models.ErrorResponse{
		Error: message,
		Code:  code,
	}

	json.NewEncoder(w).Encode(errResp)
}

// sendJSON sends v as a JSON response with the given status
func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// serviceError maps an upload service error to a status, an error code and a client message.
func serviceError(err error) (int, string, string) {
	switch {
	case errors.Is(err, uploads.ErrChunkTooLarge):
		return http.StatusRequestEntityTooLarge, "CHUNK_TOO_LARGE", err.Error()
	case errors.Is(err, uploads.ErrMissingUploadID):
		return http.StatusBadRequest, "MISSING_UPLOAD_ID", "uploadId is required"
	case errors.Is(err, uploads.ErrInvalidChunk):
		return http.StatusBadRequest, "INVALID_CHUNK", err.Error()
	case errors.Is(err, uploads.ErrNameConflict):
		return http.StatusConflict, "NAME_CONFLICT", "A file with this name already exists in the folder"
	case errors.Is(err, uploads.ErrFolderNotFound):
		return http.StatusNotFound, "FOLDER_NOT_FOUND", "Folder not found"
	case errors.Is(err, uploads.ErrInsufficientStorage):
		return http.StatusInsufficientStorage, "INSUFFICIENT_STORAGE", "Not enough storage space for this file"
	case errors.Is(err, uploads.ErrUnknownUpload):
		return http.StatusNotFound, "UPLOAD_NOT_FOUND", "Upload not found or already completed"
	case errors.Is(err, uploads.ErrUploadReset):
		return http.StatusConflict, "UPLOAD_RESET", "Upload was reset, send every chunk again"
	case errors.Is(err, uploads.ErrFileNotFound):
		return http.StatusNotFound, "FILE_NOT_FOUND", "File not found"
	case errors.Is(err, uploads.ErrShuttingDown):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Server is shutting down, retry later"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
	}
}

// sendServiceError writes the response for an upload service error. Unexpected errors are
// logged with the request's context; client errors are not.
func sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := serviceError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
		)
	}
	sendError(w, message, code, status)
}

// requireOwner returns the owner resolved by middleware.OwnerIdentity, answering 401 when
// the handler is mounted without it.
func requireOwner(w http.ResponseWriter, r *http.Request) (*models.Owner, bool) {
	owner := middleware.GetOwnerFromContext(r.Context())
	if owner == nil {
		sendError(w, "Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
		return nil, false
	}
	return owner, true
}
