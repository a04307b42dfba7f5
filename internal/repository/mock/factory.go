package mock

import "github.com/Mikkel102454/storage-selfhosted/internal/repository"

// Repositories bundles the mock repositories with their concrete types so tests can
// inject errors and inspect state.
type Repositories struct {
	Artifacts *ArtifactRepository
	Folders   *FolderRepository
	Owners    *OwnerRepository
	Health    *HealthRepository
}

// NewRepositories creates a connected set of mock repositories.
func NewRepositories() *Repositories {
	owners := NewOwnerRepository()
	folders := NewFolderRepository()
	return &Repositories{
		Artifacts: NewArtifactRepository(owners, folders),
		Folders:   folders,
		Owners:    owners,
		Health:    NewHealthRepository(),
	}
}

// Repositories returns the mocks behind the repository interfaces.
func (m *Repositories) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Artifacts:    m.Artifacts,
		Folders:      m.Folders,
		Owners:       m.Owners,
		Health:       m.Health,
		DatabaseType: repository.DatabaseTypeSQLite,
	}
}

// Reset clears all mock state.
func (m *Repositories) Reset() {
	m.Artifacts.Reset()
	m.Folders.Reset()
	m.Owners.Reset()
	m.Health.PingError = nil
	m.Health.Status = repository.HealthStatusHealthy
}
