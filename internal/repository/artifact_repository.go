package repository

import (
	"context"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
)

// ArtifactRepository defines the metadata operations for committed artifacts.
// All methods accept a context for cancellation and timeout support.
type ArtifactRepository interface {
	// CreateWithQuota inserts the artifact record and increments the owner's used bytes by
	// artifact.Size in a single transaction.
	// Returns ErrQuotaExceeded if the increment would push used bytes past the owner's limit,
	// ErrDuplicateKey if the id or the (owner, folder, name) triple already exists, and
	// ErrNotFound if the owner does not exist. Nothing is written on error.
	CreateWithQuota(ctx context.Context, artifact *models.Artifact) error

	// GetByID retrieves an artifact owned by ownerID inside folderID.
	// Returns ErrNotFound if no such artifact exists.
	GetByID(ctx context.Context, ownerID, folderID, id string) (*models.Artifact, error)

	// ExistsByName reports whether an artifact named name exists in the owner's folder.
	ExistsByName(ctx context.Context, ownerID, folderID, name string) (bool, error)

	// UpdateFolder moves an artifact to another folder of the same owner.
	// The physical path is unchanged. Returns ErrNotFound for an unknown artifact
	// and ErrDuplicateKey when the destination already holds the same name.
	UpdateFolder(ctx context.Context, ownerID, id, newFolderID string) error

	// DeleteWithQuota removes the artifact record and decrements the owner's used bytes by
	// its size, clamped at zero, in a single transaction. Returns the deleted record.
	DeleteWithQuota(ctx context.Context, ownerID, id string) (*models.Artifact, error)
}
