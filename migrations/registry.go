// Package migrations serves the embedded queue and session migrations. The
// postgres files sit at data/sql/migrations and the sqlite variants in its
// sqlite subdirectory; both trees carry the same versions.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	messenger "github.com/goliatone/go-messenger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	migrationsDir = "data/sql/migrations"
)

// RegisterFunc receives the migration tree of one dialect, typically to
// hand it to persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// Register resolves the dialect for a database/sql driver name and passes
// its migration tree to fn.
func Register(ctx context.Context, driver string, fn RegisterFunc) error {
	if fn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	dialect, err := DialectForDriver(driver)
	if err != nil {
		return err
	}
	fsys, err := FS(dialect)
	if err != nil {
		return err
	}
	if err := fn(ctx, dialect, fsys); err != nil {
		return fmt.Errorf("migrations: register %s: %w", dialect, err)
	}
	return nil
}

// DialectForDriver maps a database/sql driver name to a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "pg", "pgx", "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: unsupported driver %q", driver)
	}
}

// FS returns the migration tree of dialect. A tree without up migrations is
// an error so a broken embed fails at startup.
func FS(dialect string) (fs.FS, error) {
	root, err := fs.Sub(messenger.GetCoreMigrationsFS(), migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: %s not embedded: %w", migrationsDir, err)
	}
	var tree fs.FS
	switch dialect {
	case DialectPostgres:
		tree = root
	case DialectSQLite:
		if tree, err = fs.Sub(root, "sqlite"); err != nil {
			return nil, fmt.Errorf("migrations: resolve sqlite tree: %w", err)
		}
	default:
		return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
	}
	versions, err := upVersions(tree)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("migrations: %s tree has no *.up.sql files", dialect)
	}
	return tree, nil
}

// Versions lists the up migrations of one dialect in apply order.
func Versions(dialect string) ([]string, error) {
	fsys, err := FS(strings.TrimSpace(strings.ToLower(dialect)))
	if err != nil {
		return nil, err
	}
	return upVersions(fsys)
}

func upVersions(fsys fs.FS) ([]string, error) {
	matches, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob up files: %w", err)
	}
	slices.Sort(matches)
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		out = append(out, strings.TrimSuffix(match, ".up.sql"))
	}
	return out, nil
}
