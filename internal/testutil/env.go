package testutil

import (
	"context"
	"testing"

	"github.com/Mikkel102454/storage-selfhosted/internal/repository/mock"
	"github.com/Mikkel102454/storage-selfhosted/internal/storage/filesystem"
	"github.com/Mikkel102454/storage-selfhosted/internal/uploads"
)

// Env wires an upload service to mock repositories and a filesystem store rooted in a
// temporary directory. SampleOwner and SampleFolder are registered.
type Env struct {
	Repos   *mock.Repositories
	Store   *filesystem.Store
	Service *uploads.Service
}

// SetupTestEnv creates an Env with the given upload limits.
func SetupTestEnv(t testing.TB, cfg uploads.Config) *Env {
	t.Helper()

	store, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	repos := mock.NewRepositories()
	repos.Owners.AddOwner(SampleOwner())
	if err := repos.Folders.Create(context.Background(), SampleFolder()); err != nil {
		t.Fatalf("failed to create folder: %v", err)
	}

	return &Env{
		Repos:   repos,
		Store:   store,
		Service: uploads.NewService(store, repos.Repositories(), cfg),
	}
}
