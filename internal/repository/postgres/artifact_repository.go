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

// ArtifactRepository implements repository.ArtifactRepository for PostgreSQL.
type ArtifactRepository struct {
	pool *Pool
}

// NewArtifactRepository creates a new PostgreSQL artifact repository.
func NewArtifactRepository(pool *Pool) *ArtifactRepository {
	return &ArtifactRepository{pool: pool}
}

const artifactColumns = `id, owner_id, folder_id, name, extension, mime_type, size, storage_path, starred, created_at`

// CreateWithQuota inserts the artifact and charges its size to the owner in one
// serializable transaction. The owner row is locked so concurrent promotions for the same
// owner are ordered.
func (r *ArtifactRepository) CreateWithQuota(ctx context.Context, artifact *models.Artifact) error {
	if artifact == nil || artifact.ID == "" || artifact.OwnerID == "" || artifact.Size < 0 {
		return repository.ErrInvalidInput
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	return withRetryNoReturn(ctx, maxTxRetries, func() error {
		tx, err := r.pool.BeginTx(ctx, TxOptions())
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }() // Safe to ignore: no-op after commit

		var used, limit int64
		err = tx.QueryRow(ctx,
			"SELECT used_bytes, limit_bytes FROM owners WHERE id = $1 FOR UPDATE",
			artifact.OwnerID,
		).Scan(&used, &limit)
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read quota: %w", err)
		}

		// Overflow-safe form of used + size > limit.
		if used > limit || artifact.Size > limit-used {
			return repository.ErrQuotaExceeded
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO artifacts (`+artifactColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			artifact.ID,
			artifact.OwnerID,
			artifact.FolderID,
			artifact.Name,
			artifact.Extension,
			artifact.MimeType,
			artifact.Size,
			artifact.StoragePath,
			artifact.Starred,
			artifact.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return repository.ErrDuplicateKey
			}
			if isForeignKeyViolation(err) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("failed to insert artifact: %w", err)
		}

		if _, err := tx.Exec(ctx,
			"UPDATE owners SET used_bytes = used_bytes + $1 WHERE id = $2",
			artifact.Size, artifact.OwnerID,
		); err != nil {
			if isCheckViolation(err) {
				return repository.ErrQuotaExceeded
			}
			return fmt.Errorf("failed to increment used bytes: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

// GetByID retrieves an artifact by owner, folder and id.
func (r *ArtifactRepository) GetByID(ctx context.Context, ownerID, folderID, id string) (*models.Artifact, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE owner_id = $1 AND folder_id = $2 AND id = $3`,
		ownerID, folderID, id,
	)

	artifact, err := scanArtifact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return artifact, nil
}

// ExistsByName reports whether a same-named artifact exists in the folder.
func (r *ArtifactRepository) ExistsByName(ctx context.Context, ownerID, folderID, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM artifacts WHERE owner_id = $1 AND folder_id = $2 AND name = $3)`,
		ownerID, folderID, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check artifact name: %w", err)
	}
	return exists, nil
}

// UpdateFolder changes the folder reference of an artifact.
func (r *ArtifactRepository) UpdateFolder(ctx context.Context, ownerID, id, newFolderID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE artifacts SET folder_id = $1
		 WHERE owner_id = $2 AND id = $3
		   AND EXISTS(SELECT 1 FROM folders WHERE id = $1 AND owner_id = $2)`,
		newFolderID, ownerID, id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to move artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteWithQuota removes an artifact and releases its size from the owner's usage.
func (r *ArtifactRepository) DeleteWithQuota(ctx context.Context, ownerID, id string) (*models.Artifact, error) {
	return withRetry(ctx, maxTxRetries, func() (*models.Artifact, error) {
		tx, err := r.pool.BeginTx(ctx, TxOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		row := tx.QueryRow(ctx,
			`DELETE FROM artifacts WHERE owner_id = $1 AND id = $2 RETURNING `+artifactColumns,
			ownerID, id,
		)
		artifact, err := scanArtifact(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to delete artifact: %w", err)
		}

		if _, err := tx.Exec(ctx,
			"UPDATE owners SET used_bytes = GREATEST(used_bytes - $1, 0) WHERE id = $2",
			artifact.Size, ownerID,
		); err != nil {
			return nil, fmt.Errorf("failed to decrement used bytes: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return artifact, nil
	})
}

func scanArtifact(row pgx.Row) (*models.Artifact, error) {
	var a models.Artifact
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.FolderID,
		&a.Name,
		&a.Extension,
		&a.MimeType,
		&a.Size,
		&a.StoragePath,
		&a.Starred,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
