package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Mikkel102454/storage-selfhosted/internal/metrics"
	"github.com/Mikkel102454/storage-selfhosted/internal/middleware"
	"github.com/Mikkel102454/storage-selfhosted/internal/storage"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
	"github.com/Mikkel102454/storage-selfhosted/internal/utils"
)

// DownloadHandler handles GET /api/folders/{folderId}/files/{fileId}/download.
// A single "bytes=" range is served as 206 Partial Content; anything else that is not a
// satisfiable single range is answered with 416.
func DownloadHandler(svc *uploads.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := requireOwner(w, r)
		if !ok {
			return
		}

		folderID := chi.URLParam(r, "folderId")
		fileID := chi.URLParam(r, "fileId")

		artifact, file, err := svc.OpenArtifact(r.Context(), owner.ID, folderID, fileID)
		if err != nil {
			metrics.DownloadsTotal.WithLabelValues("failed").Inc()
			sendServiceError(w, r, err)
			return
		}
		defer file.Close()

		size := file.Size
		mimeType := artifact.MimeType
		if mimeType == "" {
			mimeType = utils.DefaultMimeType
		}

		// Always advertise Range support
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Content-Disposition", utils.ContentDisposition(artifact.Name))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Last-Modified", file.ModTime.UTC().Format(http.TimeFormat))

		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
			w.WriteHeader(http.StatusOK)
			written, err := storage.CopyRange(w, file, 0, size)
			finishDownload(r, owner.ID, artifact.ID, "full", written, err)
			return
		}

		httpRange, err := utils.ParseRange(rangeHeader, size)
		if err != nil {
			w.Header().Set("Content-Range", utils.UnsatisfiedContentRange(size))
			slog.Warn("invalid range request",
				"owner", owner.ID,
				"file_id", artifact.ID,
				"range_header", rangeHeader,
				"file_size", size,
				"error", err,
				"client_ip", middleware.GetClientIP(r),
			)
			metrics.DownloadsTotal.WithLabelValues("failed").Inc()
			sendError(w, "The requested byte range is invalid or exceeds the file size", "RANGE_NOT_SATISFIABLE", http.StatusRequestedRangeNotSatisfiable)
			return
		}

		w.Header().Set("Content-Range", httpRange.ContentRangeHeader(size))
		w.Header().Set("Content-Length", strconv.FormatInt(httpRange.ContentLength(), 10))
		w.WriteHeader(http.StatusPartialContent)
		written, err := storage.CopyRange(w, file, httpRange.Start, httpRange.ContentLength())
		finishDownload(r, owner.ID, artifact.ID, "partial", written, err)
	}
}

// finishDownload records the outcome of a streamed response. Headers are already sent, so
// errors can only be logged.
func finishDownload(r *http.Request, owner, fileID, kind string, written int64, err error) {
	metrics.DownloadSizeBytes.Observe(float64(written))
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues("failed").Inc()
		slog.Warn("download interrupted",
			"owner", owner,
			"file_id", fileID,
			"bytes_written", written,
			"error", err,
			"client_ip", middleware.GetClientIP(r),
		)
		return
	}
	metrics.DownloadsTotal.WithLabelValues(kind).Inc()
	slog.Debug("download completed",
		"owner", owner,
		"file_id", fileID,
		"kind", kind,
		"bytes_written", written,
	)
}
