package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// validOwnerID matches the owner ids accepted in the identity header. Owner ids become
// directory names, so anything outside this set is refused before reaching storage.
var validOwnerID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// OwnerIdentity resolves the calling owner from header and adds it to the request context.
// Requests without a valid, known owner are rejected with 401.
func OwnerIdentity(header string, owners repository.OwnerRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(header)
			if !validOwnerID.MatchString(id) {
				slog.Warn("owner identification failed - missing or malformed owner id",
					"path", r.URL.Path,
					"ip", GetClientIP(r),
				)
				sendError(w, "Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
				return
			}

			owner, err := owners.GetByID(r.Context(), id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					slog.Warn("owner identification failed - unknown owner",
						"owner", id,
						"ip", GetClientIP(r),
					)
					sendError(w, "Unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
					return
				}
				slog.Error("failed to get owner",
					"error", err,
					"owner", id,
				)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ownerContextKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOwnerFromContext returns the owner stored by OwnerIdentity, or nil.
func GetOwnerFromContext(ctx context.Context) *models.Owner {
	owner, _ := ctx.Value(ownerContextKey).(*models.Owner)
	return owner
}

// WithOwner returns a copy of ctx carrying owner. Used by handler tests.
func WithOwner(ctx context.Context, owner *models.Owner) context.Context {
	return context.WithValue(ctx, ownerContextKey, owner)
}
