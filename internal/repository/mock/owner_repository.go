// Package mock provides in-memory implementations of the repository interfaces for tests.
// They run without a database and let tests inject errors or override behavior.
//
// IMPORTANT: Error injection fields (e.g., CreateError) and hooks (e.g., OnCreateWithQuota)
// should be set BEFORE any concurrent operations begin. They are not protected
// by the mutex.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/Mikkel102454/storage-selfhosted/internal/models"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// OwnerRepository is a mock implementation of repository.OwnerRepository.
type OwnerRepository struct {
	mu     sync.RWMutex
	owners map[string]*models.Owner

	// Error injection
	// NOTE: Set these BEFORE concurrent access begins
	CreateError   error
	GetByIDError  error
	SetLimitError error
}

// NewOwnerRepository creates an empty mock OwnerRepository.
func NewOwnerRepository() *OwnerRepository {
	return &OwnerRepository{owners: make(map[string]*models.Owner)}
}

var _ repository.OwnerRepository = (*OwnerRepository)(nil)

// Reset clears all owners and injected errors.
func (r *OwnerRepository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.owners = make(map[string]*models.Owner)
	r.CreateError = nil
	r.GetByIDError = nil
	r.SetLimitError = nil
}

// AddOwner stores an owner as-is, including UsedBytes, for test setup.
func (r *OwnerRepository) AddOwner(owner *models.Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o := *owner
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	r.owners[o.ID] = &o
}

// Create implements repository.OwnerRepository.Create
func (r *OwnerRepository) Create(ctx context.Context, owner *models.Owner) error {
	if r.CreateError != nil {
		return r.CreateError
	}
	if owner == nil || owner.ID == "" || owner.LimitBytes < 0 {
		return repository.ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.owners[owner.ID]; exists {
		return repository.ErrDuplicateKey
	}
	owner.UsedBytes = 0
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = time.Now().UTC()
	}
	o := *owner
	r.owners[o.ID] = &o
	return nil
}

// GetByID implements repository.OwnerRepository.GetByID
func (r *OwnerRepository) GetByID(ctx context.Context, id string) (*models.Owner, error) {
	if r.GetByIDError != nil {
		return nil, r.GetByIDError
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.owners[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// SetLimit implements repository.OwnerRepository.SetLimit
func (r *OwnerRepository) SetLimit(ctx context.Context, id string, limitBytes int64) error {
	if r.SetLimitError != nil {
		return r.SetLimitError
	}
	if limitBytes < 0 {
		return repository.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.owners[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.LimitBytes = limitBytes
	return nil
}

// UsedBytes returns the owner's current usage, or -1 for an unknown owner.
func (r *OwnerRepository) UsedBytes(id string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if o, ok := r.owners[id]; ok {
		return o.UsedBytes
	}
	return -1
}

// charge adds delta to the owner's usage. A positive delta fails with ErrQuotaExceeded
// when it does not fit; a negative delta is clamped at zero.
func (r *OwnerRepository) charge(id string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.owners[id]
	if !ok {
		return repository.ErrNotFound
	}
	if delta >= 0 {
		if !o.CanStore(delta) {
			return repository.ErrQuotaExceeded
		}
		o.UsedBytes += delta
		return nil
	}
	o.UsedBytes = max(o.UsedBytes+delta, 0)
	return nil
}
