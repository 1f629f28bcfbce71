package app

import (
	"database/sql"
	"fmt"

	"streamline/internal/config"
	"streamline/internal/db"
	"streamline/internal/migrate"
)

// ResolveConfig loads the workspace config. An explicit path must exist;
// the workspace default falls back to the built-in settings.
func ResolveConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadOptional(config.Path(workspace))
}

// OpenStore opens the workspace database and applies pending migrations.
func OpenStore(workspace, dbPath string) (*sql.DB, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace, Path: dbPath})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}
