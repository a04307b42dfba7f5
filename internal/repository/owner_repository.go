package repository

import (
	"context"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
)

// OwnerRepository defines operations on owner quota accounts.
type OwnerRepository interface {
	// Create inserts an owner with the given quota limit and zero used bytes.
	// Returns ErrDuplicateKey if the owner already exists.
	Create(ctx context.Context, owner *models.Owner) error

	// GetByID retrieves an owner.
	// Returns ErrNotFound if the owner does not exist.
	GetByID(ctx context.Context, id string) (*models.Owner, error)

	// SetLimit changes an owner's quota limit. Existing usage is left untouched even when it
	// now exceeds the limit; further promotions are refused until usage drops.
	SetLimit(ctx context.Context, id string, limitBytes int64) error
}
