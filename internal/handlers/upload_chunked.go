package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Mikkel102454/storage-selfhosted/internal/middleware"
	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
)

const (
	// multipartOverhead is the allowance for form fields and part headers on top of the
	// chunk itself.
	multipartOverhead = 1 << 20

	// multipartMemory is how much of a chunk is held in memory before spilling to a temp file.
	multipartMemory = 8 << 20
)

// UploadChunkHandler handles POST /api/files/upload - receive one chunk of a file.
// The multipart form carries the chunk bytes in the "chunk" part, or in a "file" part when
// "chunk" is absent, and the fields chunkIndex, totalChunks, fileName, folderId and uploadId.
func UploadChunkHandler(svc *uploads.Service) http.HandlerFunc {
	maxChunkSize := svc.Config().MaxChunkSize

	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxChunkSize+multipartOverhead)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				sendError(w,
					fmt.Sprintf("Chunk exceeds maximum size of %d bytes", maxChunkSize),
					"CHUNK_TOO_LARGE",
					http.StatusRequestEntityTooLarge,
				)
				return
			}
			sendError(w, "Invalid multipart form", "INVALID_CHUNK", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("chunk")
		if errors.Is(err, http.ErrMissingFile) {
			file, header, err = r.FormFile("file")
		}
		if err != nil {
			sendError(w, "Missing chunk data", "INVALID_CHUNK", http.StatusBadRequest)
			return
		}
		defer file.Close()

		chunkIndex, err := strconv.Atoi(r.FormValue("chunkIndex"))
		if err != nil {
			sendError(w, "chunkIndex must be an integer", "INVALID_CHUNK", http.StatusBadRequest)
			return
		}
		totalChunks, err := strconv.Atoi(r.FormValue("totalChunks"))
		if err != nil {
			sendError(w, "totalChunks must be an integer", "INVALID_CHUNK", http.StatusBadRequest)
			return
		}

		result, err := svc.UploadChunk(r.Context(), uploads.Chunk{
			Owner:       owner.ID,
			UploadID:    r.FormValue("uploadId"),
			Index:       chunkIndex,
			TotalChunks: totalChunks,
			FileName:    r.FormValue("fileName"),
			FolderID:    r.FormValue("folderId"),
			Size:        header.Size,
			Data:        file,
		})
		if err != nil {
			if status, _, _ := serviceError(err); status < http.StatusInternalServerError {
				slog.Warn("chunk rejected",
					"owner", owner.ID,
					"upload_id", r.FormValue("uploadId"),
					"chunk_index", chunkIndex,
					"error", err,
					"client_ip", middleware.GetClientIP(r),
				)
			}
			sendServiceError(w, r, err)
			return
		}

		response := models.UploadChunkResponse{
			UploadID:       result.UploadID,
			ChunkIndex:     result.Index,
			ChunksReceived: result.Received,
			TotalChunks:    result.TotalChunks,
			Complete:       result.Artifact != nil,
		}

		status := http.StatusOK
		if result.Artifact != nil {
			response.File = result.Artifact.ToResponse()
			status = http.StatusCreated
		}

		sendJSON(w, status, response)
	}
}
