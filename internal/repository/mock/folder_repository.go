package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// FolderRepository is a mock implementation of repository.FolderRepository.
type FolderRepository struct {
	mu      sync.RWMutex
	folders map[string]*models.Folder

	// Error injection
	// NOTE: Set these BEFORE concurrent access begins
	CreateError  error
	GetByIDError error
	ExistsError  error
}

// NewFolderRepository creates an empty mock FolderRepository.
func NewFolderRepository() *FolderRepository {
	return &FolderRepository{folders: make(map[string]*models.Folder)}
}

var _ repository.FolderRepository = (*FolderRepository)(nil)

// Reset clears all folders and injected errors.
func (r *FolderRepository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.folders = make(map[string]*models.Folder)
	r.CreateError = nil
	r.GetByIDError = nil
	r.ExistsError = nil
}

// Create implements repository.FolderRepository.Create
func (r *FolderRepository) Create(ctx context.Context, folder *models.Folder) error {
	if r.CreateError != nil {
		return r.CreateError
	}
	if folder == nil || folder.ID == "" || folder.OwnerID == "" || folder.Name == "" {
		return repository.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.folders[folder.ID]; exists {
		return repository.ErrDuplicateKey
	}
	if folder.ParentID != nil {
		p, ok := r.folders[*folder.ParentID]
		if !ok || p.OwnerID != folder.OwnerID {
			return repository.ErrNotFound
		}
	}
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = time.Now().UTC()
	}
	r.folders[folder.ID] = copyFolder(folder)
	return nil
}

// GetByID implements repository.FolderRepository.GetByID
func (r *FolderRepository) GetByID(ctx context.Context, ownerID, id string) (*models.Folder, error) {
	if r.GetByIDError != nil {
		return nil, r.GetByIDError
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.folders[id]
	if !ok || f.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return copyFolder(f), nil
}

// Exists implements repository.FolderRepository.Exists
func (r *FolderRepository) Exists(ctx context.Context, ownerID, id string) (bool, error) {
	if r.ExistsError != nil {
		return false, r.ExistsError
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.folders[id]
	return ok && f.OwnerID == ownerID, nil
}

// Delete removes a folder. Tests use it to simulate a destination disappearing mid-upload.
func (r *FolderRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.folders, id)
}

func copyFolder(src *models.Folder) *models.Folder {
	dst := *src
	if src.ParentID != nil {
		p := *src.ParentID
		dst.ParentID = &p
	}
	return &dst
}
