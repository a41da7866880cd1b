package sqlite

import (
	"context"
	"embed"
	"fmt"

	"github.com/plaenen/assetlimits/pkg/store/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"

func (s *Store) migrator() (*migrate.Migrator, error) {
	m := migrate.New(s.db, migrationsTable)
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return m, nil
}

// Migrate applies pending migrations and returns how many ran.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.migrator()
	if err != nil {
		return 0, err
	}
	applied, err := m.Up(ctx)
	if err != nil {
		return applied, fmt.Errorf("failed to run migrations: %w", err)
	}
	return applied, nil
}

// MigrationVersion returns the schema version currently applied.
func (s *Store) MigrationVersion(ctx context.Context) (int, error) {
	m, err := s.migrator()
	if err != nil {
		return 0, err
	}
	return m.Version(ctx)
}
