package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/utils"
)

type contextKey string

const (
	ownerContextKey     contextKey = "owner"
	requestIDContextKey contextKey = "request_id"
	clientIPContextKey  contextKey = "client_ip"
)

// ClientIP resolves the client address once per request, honouring forwarding headers
// only from trusted proxies, and stores it in the request context.
func ClientIP(trusted utils.ProxyList) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trusted)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPContextKey, ip)))
		})
	}
}

// GetClientIP returns the client address stored by ClientIP, or the peer address when the
// middleware did not run.
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPContextKey).(string); ok {
		return ip
	}
	return utils.ExtractIP(r.RemoteAddr)
}

func sendError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
