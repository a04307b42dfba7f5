package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Mikkel102454/storage-selfhosted/internal/metrics"
	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// Health check timeout for external dependencies
const healthCheckTimeout = 5 * time.Second

// StorageProber is the part of storage.Backend the health check needs.
type StorageProber interface {
	Probe(ctx context.Context) error
}

// setHealthCacheHeaders sets cache-control headers for health endpoints.
// Health checks should never be cached to ensure accurate probe responses.
func setHealthCacheHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// HealthHandler handles GET /health - checks the metadata database and the storage root.
// Returns 503 when either is unhealthy; a slow database reports "degraded" with 200.
func HealthHandler(healthRepo repository.HealthRepository, store StorageProber, activeUploads func() int, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		response := &models.HealthResponse{
			Status:        string(repository.HealthStatusHealthy),
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
			ActiveUploads: activeUploads(),
			Components:    make(map[string]string),
		}

		dbHealth, err := healthRepo.CheckHealth(ctx)
		switch {
		case err != nil:
			slog.Error("database health check failed", "error", err)
			response.Components["database"] = string(repository.HealthStatusUnhealthy)
			response.StatusDetails = append(response.StatusDetails, "database health check failed")
		default:
			response.Components["database"] = string(dbHealth.Status)
			if dbHealth.Status != repository.HealthStatusHealthy {
				response.StatusDetails = append(response.StatusDetails,
					fmt.Sprintf("database %s: %s", dbHealth.Status, dbHealth.Message))
			}
		}

		if err := store.Probe(ctx); err != nil {
			slog.Error("storage health check failed", "error", err)
			response.Components["storage"] = string(repository.HealthStatusUnhealthy)
			response.StatusDetails = append(response.StatusDetails, "storage root not writable")
		} else {
			response.Components["storage"] = string(repository.HealthStatusHealthy)
		}

		httpCode := http.StatusOK
		for _, status := range response.Components {
			switch repository.HealthStatus(status) {
			case repository.HealthStatusUnhealthy:
				response.Status = string(repository.HealthStatusUnhealthy)
				httpCode = http.StatusServiceUnavailable
			case repository.HealthStatusDegraded:
				if response.Status == string(repository.HealthStatusHealthy) {
					response.Status = string(repository.HealthStatusDegraded)
				}
			}
		}

		metrics.HealthChecksTotal.WithLabelValues(response.Status).Inc()
		updateHealthStatusGauge(response.Status)

		setHealthCacheHeaders(w)
		sendJSON(w, httpCode, response)
	}
}

// HealthLivenessHandler handles GET /health/live - the process is up and can reach the database.
func HealthLivenessHandler(healthRepo repository.HealthRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setHealthCacheHeaders(w)

		if err := healthRepo.Ping(r.Context()); err != nil {
			slog.Error("liveness check failed: database ping error", "error", err)
			sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}

		sendJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// updateHealthStatusGauge updates the Prometheus health status gauge
func updateHealthStatusGauge(status string) {
	switch repository.HealthStatus(status) {
	case repository.HealthStatusHealthy:
		metrics.HealthStatus.Set(2)
	case repository.HealthStatusDegraded:
		metrics.HealthStatus.Set(1)
	default:
		metrics.HealthStatus.Set(0)
	}
}
