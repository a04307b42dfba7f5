package mock

import (
	"context"

	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// HealthRepository is a mock implementation of repository.HealthRepository.
type HealthRepository struct {
	PingError error
	Status    repository.HealthStatus
}

// NewHealthRepository creates a mock that reports healthy.
func NewHealthRepository() *HealthRepository {
	return &HealthRepository{Status: repository.HealthStatusHealthy}
}

var _ repository.HealthRepository = (*HealthRepository)(nil)

// Ping implements repository.HealthRepository.Ping
func (r *HealthRepository) Ping(ctx context.Context) error {
	return r.PingError
}

// CheckHealth implements repository.HealthRepository.CheckHealth
func (r *HealthRepository) CheckHealth(ctx context.Context) (*repository.ComponentHealth, error) {
	h := &repository.ComponentHealth{Name: "mock", Status: r.Status}
	if r.PingError != nil {
		h.Status = repository.HealthStatusUnhealthy
		h.Message = r.PingError.Error()
		return h, r.PingError
	}
	return h, nil
}
