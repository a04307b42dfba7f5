package repository

import (
	"context"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
)

// FolderRepository defines the folder lookups needed to validate upload destinations.
type FolderRepository interface {
	// Create inserts a folder. folder.ID must be set by the caller.
	// Returns ErrNotFound if the parent folder does not exist for the owner.
	Create(ctx context.Context, folder *models.Folder) error

	// GetByID retrieves a folder owned by ownerID.
	// Returns ErrNotFound if the folder does not exist or belongs to another owner.
	GetByID(ctx context.Context, ownerID, id string) (*models.Folder, error)

	// Exists reports whether the folder exists for the owner.
	Exists(ctx context.Context, ownerID, id string) (bool, error)
}
