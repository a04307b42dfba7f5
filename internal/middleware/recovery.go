package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// RecoveryMiddleware recovers from panics and returns a 500 error
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				// http.ErrAbortHandler is the server's own signal to drop the connection
				if err == http.ErrAbortHandler {
					panic(err)
				}

				slog.Error("panic recovered",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", GetRequestID(r.Context()),
					"stack", string(debug.Stack()),
				)

				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
