package handlers

import (
	"net/http"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
)

// PublicConfigHandler returns the upload parameters clients need to split files into chunks
func PublicConfigHandler(cfg uploads.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sendJSON(w, http.StatusOK, models.PublicConfigResponse{
			MaxChunkSize:   cfg.MaxChunkSize,
			MaxTotalChunks: cfg.MaxTotalChunks,
		})
	}
}
