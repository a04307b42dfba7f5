package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// ArtifactRepository is a mock implementation of repository.ArtifactRepository.
// Quota changes are applied to the OwnerRepository it was created with.
type ArtifactRepository struct {
	mu        sync.RWMutex
	artifacts map[string]*models.Artifact
	owners    *OwnerRepository
	folders   *FolderRepository
	creates   int

	// Error injection
	// NOTE: Set these BEFORE concurrent access begins
	CreateWithQuotaError error
	GetByIDError         error
	ExistsByNameError    error
	UpdateFolderError    error
	DeleteWithQuotaError error

	// OnCreateWithQuota runs before the insert; a non-nil error aborts it.
	OnCreateWithQuota func(ctx context.Context, artifact *models.Artifact) error
}

// NewArtifactRepository creates a mock ArtifactRepository charging quota to owners.
// folders may be nil, in which case UpdateFolder does not check the destination.
func NewArtifactRepository(owners *OwnerRepository, folders *FolderRepository) *ArtifactRepository {
	return &ArtifactRepository{
		artifacts: make(map[string]*models.Artifact),
		owners:    owners,
		folders:   folders,
	}
}

var _ repository.ArtifactRepository = (*ArtifactRepository)(nil)

// Reset clears all artifacts, counters, injected errors and hooks.
func (r *ArtifactRepository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.artifacts = make(map[string]*models.Artifact)
	r.creates = 0
	r.CreateWithQuotaError = nil
	r.GetByIDError = nil
	r.ExistsByNameError = nil
	r.UpdateFolderError = nil
	r.DeleteWithQuotaError = nil
	r.OnCreateWithQuota = nil
}

// AddArtifact stores an artifact directly without touching quota.
func (r *ArtifactRepository) AddArtifact(a *models.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.artifacts[cp.ID] = &cp
}

// Artifacts returns copies of all stored artifacts.
func (r *ArtifactRepository) Artifacts() []*models.Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Artifact, 0, len(r.artifacts))
	for _, a := range r.artifacts {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// CreateCount returns how many CreateWithQuota calls succeeded.
func (r *ArtifactRepository) CreateCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.creates
}

// CreateWithQuota implements repository.ArtifactRepository.CreateWithQuota
func (r *ArtifactRepository) CreateWithQuota(ctx context.Context, artifact *models.Artifact) error {
	if r.CreateWithQuotaError != nil {
		return r.CreateWithQuotaError
	}
	if artifact == nil || artifact.ID == "" || artifact.OwnerID == "" || artifact.Size < 0 {
		return repository.ErrInvalidInput
	}
	if r.OnCreateWithQuota != nil {
		if err := r.OnCreateWithQuota(ctx, artifact); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.artifacts[artifact.ID]; exists {
		return repository.ErrDuplicateKey
	}
	for _, a := range r.artifacts {
		if a.OwnerID == artifact.OwnerID && a.FolderID == artifact.FolderID && a.Name == artifact.Name {
			return repository.ErrDuplicateKey
		}
	}

	if err := r.owners.charge(artifact.OwnerID, artifact.Size); err != nil {
		return err
	}

	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	cp := *artifact
	r.artifacts[cp.ID] = &cp
	r.creates++
	return nil
}

// GetByID implements repository.ArtifactRepository.GetByID
func (r *ArtifactRepository) GetByID(ctx context.Context, ownerID, folderID, id string) (*models.Artifact, error) {
	if r.GetByIDError != nil {
		return nil, r.GetByIDError
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.artifacts[id]
	if !ok || a.OwnerID != ownerID || a.FolderID != folderID {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ExistsByName implements repository.ArtifactRepository.ExistsByName
func (r *ArtifactRepository) ExistsByName(ctx context.Context, ownerID, folderID, name string) (bool, error) {
	if r.ExistsByNameError != nil {
		return false, r.ExistsByNameError
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.artifacts {
		if a.OwnerID == ownerID && a.FolderID == folderID && a.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// UpdateFolder implements repository.ArtifactRepository.UpdateFolder
func (r *ArtifactRepository) UpdateFolder(ctx context.Context, ownerID, id, newFolderID string) error {
	if r.UpdateFolderError != nil {
		return r.UpdateFolderError
	}
	if r.folders != nil {
		ok, err := r.folders.Exists(ctx, ownerID, newFolderID)
		if err != nil {
			return err
		}
		if !ok {
			return repository.ErrNotFound
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.artifacts[id]
	if !ok || a.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	for _, other := range r.artifacts {
		if other.ID != id && other.OwnerID == ownerID && other.FolderID == newFolderID && other.Name == a.Name {
			return repository.ErrDuplicateKey
		}
	}
	a.FolderID = newFolderID
	return nil
}

// DeleteWithQuota implements repository.ArtifactRepository.DeleteWithQuota
func (r *ArtifactRepository) DeleteWithQuota(ctx context.Context, ownerID, id string) (*models.Artifact, error) {
	if r.DeleteWithQuotaError != nil {
		return nil, r.DeleteWithQuotaError
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.artifacts[id]
	if !ok || a.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	delete(r.artifacts, id)
	if err := r.owners.charge(ownerID, -a.Size); err != nil && err != repository.ErrNotFound {
		return nil, err
	}
	return a, nil
}
