package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// HealthRepository checks that the SQLite metadata store is reachable and migrated.
type HealthRepository struct {
	db *sql.DB
}

// NewHealthRepository creates a new SQLite health repository.
func NewHealthRepository(db *sql.DB) *HealthRepository {
	return &HealthRepository{db: db}
}

// Ping performs a basic connectivity check to the database.
func (r *HealthRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CheckHealth counts owners, which fails when the schema is missing, and classifies the
// query latency. Slow answers usually mean writers are contending for the database lock.
func (r *HealthRepository) CheckHealth(ctx context.Context) (*repository.ComponentHealth, error) {
	start := time.Now()
	health := &repository.ComponentHealth{
		Name:   "sqlite",
		Status: repository.HealthStatusHealthy,
	}

	var owners int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM owners").Scan(&owners)
	health.Latency = time.Since(start)

	if err != nil {
		health.Status = repository.HealthStatusUnhealthy
		health.Message = "metadata query failed: " + err.Error()
		return health, err
	}

	if health.Latency > repository.SlowQueryThreshold {
		health.Status = repository.HealthStatusDegraded
		health.Message = "high query latency"
	}

	return health, nil
}
