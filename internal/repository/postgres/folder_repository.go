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

// FolderRepository implements repository.FolderRepository for PostgreSQL.
type FolderRepository struct {
	pool *Pool
}

// NewFolderRepository creates a new PostgreSQL folder repository.
func NewFolderRepository(pool *Pool) *FolderRepository {
	return &FolderRepository{pool: pool}
}

// Create inserts a folder. A parent, when given, must belong to the same owner.
func (r *FolderRepository) Create(ctx context.Context, folder *models.Folder) error {
	if folder == nil || folder.ID == "" || folder.OwnerID == "" || folder.Name == "" {
		return repository.ErrInvalidInput
	}
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = time.Now().UTC()
	}

	if folder.ParentID != nil {
		ok, err := r.Exists(ctx, folder.OwnerID, *folder.ParentID)
		if err != nil {
			return fmt.Errorf("failed to check parent folder: %w", err)
		}
		if !ok {
			return repository.ErrNotFound
		}
	}

	_, err := r.pool.Exec(ctx,
		"INSERT INTO folders (id, owner_id, parent_id, name, created_at) VALUES ($1, $2, $3, $4, $5)",
		folder.ID, folder.OwnerID, folder.ParentID, folder.Name, folder.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		if isForeignKeyViolation(err) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("failed to insert folder: %w", err)
	}
	return nil
}

// GetByID retrieves a folder owned by ownerID.
func (r *FolderRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Folder, error) {
	var f models.Folder
	err := r.pool.QueryRow(ctx,
		"SELECT id, owner_id, parent_id, name, created_at FROM folders WHERE id = $1 AND owner_id = $2",
		id, ownerID,
	).Scan(&f.ID, &f.OwnerID, &f.ParentID, &f.Name, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}

// Exists reports whether the folder exists for the owner.
func (r *FolderRepository) Exists(ctx context.Context, ownerID, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM folders WHERE id = $1 AND owner_id = $2)",
		id, ownerID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check folder: %w", err)
	}
	return exists, nil
}
