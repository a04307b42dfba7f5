package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware instruments HTTP handlers with request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK, // Default to 200 if WriteHeader not called
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		method := r.Method
		status := strconv.Itoa(wrapped.statusCode)

		HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// normalizePath normalizes URL paths for metric labels to avoid cardinality explosion.
// Upload, folder and file ids are replaced with placeholders.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/metrics", "/api/config", "/api/files/upload":
		return path
	}

	switch {
	case strings.HasPrefix(path, "/api/uploads/"):
		return "/api/uploads/:id"

	case strings.HasPrefix(path, "/api/folders/"):
		// /api/folders/{folderId}/files/{fileId}/download
		parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
		if len(parts) == 6 && parts[3] == "files" && parts[5] == "download" {
			return "/api/folders/:folder/files/:id/download"
		}
		return "/api/folders/*"

	default:
		return "/other"
	}
}
