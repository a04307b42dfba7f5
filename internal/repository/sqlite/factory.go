package sqlite

import (
	"database/sql"

	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
)

// NewRepositories creates all SQLite repository implementations.
// The db parameter must be a valid, open database connection with migrations applied.
//
// The returned Cleanup function closes the database connection.
func NewRepositories(db *sql.DB) (*repository.Repositories, error) {
	if db == nil {
		return nil, repository.ErrNilDatabase
	}

	return &repository.Repositories{
		Artifacts:    NewArtifactRepository(db),
		Folders:      NewFolderRepository(db),
		Owners:       NewOwnerRepository(db),
		Health:       NewHealthRepository(db),
		DatabaseType: repository.DatabaseTypeSQLite,
		Cleanup: func() {
			db.Close()
		},
	}, nil
}
