package postgres

import (
	"context"
	"time"

	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// HealthRepository checks that the PostgreSQL metadata store is reachable and migrated.
type HealthRepository struct {
	pool *Pool
}

// NewHealthRepository creates a new PostgreSQL health repository.
func NewHealthRepository(pool *Pool) *HealthRepository {
	return &HealthRepository{pool: pool}
}

// Ping performs a basic connectivity check to the database.
func (r *HealthRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CheckHealth counts owners and classifies the result by latency and pool saturation.
func (r *HealthRepository) CheckHealth(ctx context.Context) (*repository.ComponentHealth, error) {
	start := time.Now()
	health := &repository.ComponentHealth{
		Name:   "postgresql",
		Status: repository.HealthStatusHealthy,
	}

	var owners int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM owners").Scan(&owners)
	health.Latency = time.Since(start)

	if err != nil {
		health.Status = repository.HealthStatusUnhealthy
		health.Message = "metadata query failed: " + err.Error()
		return health, err
	}

	switch stat := r.pool.Stat(); {
	case health.Latency > repository.SlowQueryThreshold:
		health.Status = repository.HealthStatusDegraded
		health.Message = "high query latency"
	case stat.MaxConns() > 0 && stat.AcquiredConns() >= stat.MaxConns():
		health.Status = repository.HealthStatusDegraded
		health.Message = "connection pool exhausted"
	}

	return health, nil
}
