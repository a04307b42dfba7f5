package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// OwnerRepository implements repository.OwnerRepository for SQLite.
type OwnerRepository struct {
	db *sql.DB
}

// NewOwnerRepository creates a new SQLite owner repository.
func NewOwnerRepository(db *sql.DB) *OwnerRepository {
	return &OwnerRepository{db: db}
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

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO owners (id, used_bytes, limit_bytes, created_at) VALUES (?, 0, ?, ?)",
		owner.ID, owner.LimitBytes, formatTime(owner.CreatedAt),
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
	var (
		o         models.Owner
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, used_bytes, limit_bytes, created_at FROM owners WHERE id = ?", id,
	).Scan(&o.ID, &o.UsedBytes, &o.LimitBytes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	o.CreatedAt = parseTime(createdAt)
	return &o, nil
}

// SetLimit updates the owner's quota limit.
func (r *OwnerRepository) SetLimit(ctx context.Context, id string, limitBytes int64) error {
	if limitBytes < 0 {
		return repository.ErrInvalidInput
	}

	result, err := r.db.ExecContext(ctx, "UPDATE owners SET limit_bytes = ? WHERE id = ?", limitBytes, id)
	if err != nil {
		return fmt.Errorf("failed to update quota limit: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
