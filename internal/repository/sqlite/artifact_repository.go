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

// ArtifactRepository implements repository.ArtifactRepository for SQLite.
type ArtifactRepository struct {
	db *sql.DB
}

// NewArtifactRepository creates a new SQLite artifact repository.
func NewArtifactRepository(db *sql.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

const artifactColumns = `id, owner_id, folder_id, name, extension, mime_type, size, storage_path, starred, created_at`

// CreateWithQuota inserts the artifact and charges its size to the owner in one transaction.
func (r *ArtifactRepository) CreateWithQuota(ctx context.Context, artifact *models.Artifact) error {
	if artifact == nil || artifact.ID == "" || artifact.OwnerID == "" || artifact.Size < 0 {
		return repository.ErrInvalidInput
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}

	tx, err := beginImmediateTx(ctx, r.db)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	var used, limit int64
	err = tx.QueryRowContext(ctx,
		"SELECT used_bytes, limit_bytes FROM owners WHERE id = ?", artifact.OwnerID,
	).Scan(&used, &limit)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read quota: %w", err)
	}

	// Overflow-safe form of used + size > limit.
	if used > limit || artifact.Size > limit-used {
		return repository.ErrQuotaExceeded
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO artifacts (`+artifactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		artifact.ID,
		artifact.OwnerID,
		artifact.FolderID,
		artifact.Name,
		artifact.Extension,
		artifact.MimeType,
		artifact.Size,
		artifact.StoragePath,
		boolToInt(artifact.Starred),
		formatTime(artifact.CreatedAt),
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

	if _, err := tx.ExecContext(ctx,
		"UPDATE owners SET used_bytes = used_bytes + ? WHERE id = ?",
		artifact.Size, artifact.OwnerID,
	); err != nil {
		return fmt.Errorf("failed to increment used bytes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves an artifact by owner, folder and id.
func (r *ArtifactRepository) GetByID(ctx context.Context, ownerID, folderID, id string) (*models.Artifact, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE owner_id = ? AND folder_id = ? AND id = ?`,
		ownerID, folderID, id,
	)

	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return artifact, nil
}

// ExistsByName reports whether a same-named artifact exists in the folder.
func (r *ArtifactRepository) ExistsByName(ctx context.Context, ownerID, folderID, name string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM artifacts WHERE owner_id = ? AND folder_id = ? AND name = ?)`,
		ownerID, folderID, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check artifact name: %w", err)
	}
	return exists == 1, nil
}

// UpdateFolder changes the folder reference of an artifact.
func (r *ArtifactRepository) UpdateFolder(ctx context.Context, ownerID, id, newFolderID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE artifacts SET folder_id = ?
		 WHERE owner_id = ? AND id = ?
		   AND EXISTS(SELECT 1 FROM folders WHERE id = ? AND owner_id = ?)`,
		newFolderID, ownerID, id, newFolderID, ownerID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateKey
		}
		return fmt.Errorf("failed to move artifact: %w", err)
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

// DeleteWithQuota removes an artifact and releases its size from the owner's usage.
func (r *ArtifactRepository) DeleteWithQuota(ctx context.Context, ownerID, id string) (*models.Artifact, error) {
	tx, err := beginImmediateTx(ctx, r.db)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE owner_id = ? AND id = ?`,
		ownerID, id,
	)
	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM artifacts WHERE owner_id = ? AND id = ?", ownerID, id); err != nil {
		return nil, fmt.Errorf("failed to delete artifact: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE owners SET used_bytes = MAX(used_bytes - ?, 0) WHERE id = ?",
		artifact.Size, ownerID,
	); err != nil {
		return nil, fmt.Errorf("failed to decrement used bytes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return artifact, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*models.Artifact, error) {
	var (
		a         models.Artifact
		starred   int
		createdAt string
	)
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.FolderID,
		&a.Name,
		&a.Extension,
		&a.MimeType,
		&a.Size,
		&a.StoragePath,
		&starred,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	a.Starred = starred != 0
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}
