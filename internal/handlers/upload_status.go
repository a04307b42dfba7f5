package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
)

// UploadStatusHandler handles GET /api/uploads/{uploadId} - report which chunks of a live
// upload have been received, so clients can resume.
func UploadStatusHandler(svc *uploads.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}

		status, err := svc.Status(owner.ID, chi.URLParam(r, "uploadId"))
		if err != nil {
			sendServiceError(w, r, err)
			return
		}

		sendJSON(w, http.StatusOK, models.UploadStatusResponse{
			UploadID:       status.UploadID,
			FileName:       status.FileName,
			FolderID:       status.FolderID,
			ChunksReceived: status.Received,
			TotalChunks:    status.TotalChunks,
			MissingChunks:  status.Missing,
			Complete:       status.Received == status.TotalChunks,
		})
	}
}
