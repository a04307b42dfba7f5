package postgres

import (
	"context"
	"fmt"
	"log/slog"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
}

// migrations contains all PostgreSQL schema migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Name:        "001_initial",
		Description: "Owners with quota accounts, folders and committed artifacts",
		SQL: `
CREATE TABLE IF NOT EXISTS owners (
    id TEXT PRIMARY KEY,
    used_bytes BIGINT NOT NULL DEFAULT 0 CHECK (used_bytes >= 0),
    limit_bytes BIGINT NOT NULL CHECK (limit_bytes >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS folders (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
    parent_id TEXT REFERENCES folders(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_folders_owner_id ON folders(owner_id);

CREATE TABLE IF NOT EXISTS artifacts (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES owners(id) ON DELETE CASCADE,
    folder_id TEXT NOT NULL REFERENCES folders(id),
    name TEXT NOT NULL,
    extension TEXT NOT NULL DEFAULT '',
    mime_type TEXT NOT NULL DEFAULT 'application/octet-stream',
    size BIGINT NOT NULL CHECK (size >= 0),
    storage_path TEXT NOT NULL,
    starred BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (owner_id, folder_id, name)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_owner_folder ON artifacts(owner_id, folder_id);
`,
	},
}

// RunMigrations applies all pending database migrations to PostgreSQL.
func RunMigrations(ctx context.Context, pool *Pool) error {
	slog.Info("running PostgreSQL database migrations")

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id SERIAL PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	pendingCount := 0
	for _, m := range migrations {
		if applied[m.Name] {
			slog.Debug("migration already applied", "migration", m.Name)
			continue
		}

		slog.Info("applying migration", "migration", m.Name, "description", m.Description)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Name, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Name, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO migrations (name) VALUES ($1)", m.Name); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Name, err)
		}

		slog.Info("migration applied successfully", "migration", m.Name)
		pendingCount++
	}

	if pendingCount == 0 {
		slog.Info("no pending PostgreSQL migrations")
	} else {
		slog.Info("PostgreSQL migrations complete", "applied", pendingCount)
	}

	return nil
}

func appliedMigrations(ctx context.Context, pool *Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, "SELECT name FROM migrations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration name: %w", err)
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return applied, nil
}

// GetMigrationStatus returns the status of all migrations.
func GetMigrationStatus(ctx context.Context, pool *Pool) ([]MigrationStatus, error) {
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		// Table might not exist yet
		applied = map[string]bool{}
	}

	status := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		status = append(status, MigrationStatus{
			Version:     m.Version,
			Name:        m.Name,
			Description: m.Description,
			Applied:     applied[m.Name],
		})
	}

	return status, nil
}

// MigrationStatus represents the status of a migration.
type MigrationStatus struct {
	Version     int
	Name        string
	Description string
	Applied     bool
}
