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

// FolderRepository implements repository.FolderRepository for SQLite.
type FolderRepository struct {
	db *sql.DB
}

// NewFolderRepository creates a new SQLite folder repository.
func NewFolderRepository(db *sql.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

// Create inserts a folder after checking that its parent belongs to the same owner.
func (r *FolderRepository) Create(ctx context.Context, folder *models.Folder) error {
	if folder == nil || folder.ID == "" || folder.OwnerID == "" || folder.Name == "" {
		return repository.ErrInvalidInput
	}
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = time.Now().UTC()
	}

	tx, err := beginImmediateTx(ctx, r.db)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	if folder.ParentID != nil {
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM folders WHERE id = ? AND owner_id = ?)",
			*folder.ParentID, folder.OwnerID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check parent folder: %w", err)
		}
		if exists == 0 {
			return repository.ErrNotFound
		}
		parent = sql.NullString{String: *folder.ParentID, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO folders (id, owner_id, parent_id, name, created_at) VALUES (?, ?, ?, ?, ?)",
		folder.ID, folder.OwnerID, parent, folder.Name, formatTime(folder.CreatedAt),
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

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a folder owned by ownerID.
func (r *FolderRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Folder, error) {
	var (
		f         models.Folder
		parent    sql.NullString
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, owner_id, parent_id, name, created_at FROM folders WHERE id = ? AND owner_id = ?",
		id, ownerID,
	).Scan(&f.ID, &f.OwnerID, &parent, &f.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}

	if parent.Valid {
		f.ParentID = &parent.String
	}
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

// Exists reports whether the folder exists for the owner.
func (r *FolderRepository) Exists(ctx context.Context, ownerID, id string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM folders WHERE id = ? AND owner_id = ?)",
		id, ownerID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check folder: %w", err)
	}
	return exists == 1, nil
}
