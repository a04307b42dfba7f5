package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// OwnerRepository implements repository.OwnerRepository for PostgreSQL.
type OwnerRepository struct {
	pool *Pool
}

// NewOwnerRepository creates a new PostgreSQL owner repository.
func NewOwnerRepository(pool *Pool) *OwnerRepository {
	return &OwnerRepository{pool: pool}
}

// Create inserts a new owner with zero usage.
func (r *OwnerRepository) Create(ctx context.Context, owner *models.Owner) error {
	if owner == nil || owner.ID == "" || owner.LimitBytes < 0 {
		return repository.ErrInvalidInput
	}
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = time.Now().UTC()
	}
	owner.UsedBytes = 0

	_, err := r.pool.Exec(ctx,
		"INSERT INTO owners (id, used_bytes, limit_bytes, created_at) VALUES ($1, 0, $2, $3)",
		owner.ID, owner.LimitBytes, owner.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to insert owner: %w", err)
	}
	return nil
}

// GetByID retrieves an owner and its quota counters.
func (r *OwnerRepository) GetByID(ctx context.Context, id string) (*models.Owner, error) {
	var o models.Owner
	err := r.pool.QueryRow(ctx,
		"SELECT id, used_bytes, limit_bytes, created_at FROM owners WHERE id = $1", id,
	).Scan(&o.ID, &o.UsedBytes, &o.LimitBytes, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}

// SetLimit updates the owner's quota limit.
func (r *OwnerRepository) SetLimit(ctx context.Context, id string, limitBytes int64) error {
	if limitBytes < 0 {
		return repository.ErrInvalidInput
	}

	tag, err := r.pool.Exec(ctx, "UPDATE owners SET limit_bytes = $1 WHERE id = $2", limitBytes, id)
	if err != nil {
		return fmt.Errorf("failed to update quota limit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
