package messenger

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the SQL schema for the durable queue and session
// tables, with SQLite variants under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}

// GetCoreMigrationsFS returns the queue and session schema.
func GetCoreMigrationsFS() fs.FS {
	return migrationsFS
}
