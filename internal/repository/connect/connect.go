// Package connect opens the metadata repositories selected by the configuration.
package connect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mikkel102454/storage-selfhosted/internal/config"
	"github.com/Mikkel102454/storage-selfhosted/internal/database"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository/postgres"
	"github.com/Mikkel102454/storage-selfhosted/internal/repository/sqlite"
)

// Open connects the metadata store named by cfg.Driver and applies pending migrations.
// The caller must Close the returned repositories.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*repository.Repositories, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		repos, err := postgres.NewRepositories(ctx, &cfg.PostgreSQL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		slog.Info("database initialized",
			"driver", cfg.Driver,
			"host", cfg.PostgreSQL.Host,
			"database", cfg.PostgreSQL.Database,
		)
		return repos, nil

	case config.DriverSQLite, "":
		db, err := database.Initialize(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		repos, err := sqlite.NewRepositories(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("database initialized", "driver", config.DriverSQLite, "path", cfg.Path)
		return repos, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
