package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	messenger "github.com/goliatone/go-messenger"
	_ "github.com/mattn/go-sqlite3"
)

func TestFS_ReturnsUpFilesForBothDialects(t *testing.T) {
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		fsys, err := FS(dialect)
		if err != nil {
			t.Fatalf("%s: %v", dialect, err)
		}
		matches, err := fs.Glob(fsys, "*.up.sql")
		if err != nil {
			t.Fatalf("%s glob: %v", dialect, err)
		}
		if len(matches) == 0 {
			t.Fatalf("expected up migrations for %s", dialect)
		}
	}
	if _, err := FS("mysql"); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}

func TestRegister_PassesDriverDialect(t *testing.T) {
	var calls []string
	err := Register(context.Background(), "sqlite3", func(_ context.Context, dialect string, fsys fs.FS) error {
		calls = append(calls, dialect)
		if _, err := fs.Stat(fsys, "00001_messenger_queue.up.sql"); err != nil {
			t.Fatalf("expected sqlite tree, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !slices.Equal(calls, []string{DialectSQLite}) {
		t.Fatalf("expected one sqlite registration, got %v", calls)
	}
}

func TestRegister_Errors(t *testing.T) {
	ctx := context.Background()
	noop := func(context.Context, string, fs.FS) error { return nil }

	if err := Register(ctx, "sqlite3", nil); err == nil {
		t.Fatalf("expected error for nil register func")
	}
	if err := Register(ctx, "oracle", noop); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}

	failure := errors.New("boom")
	err := Register(ctx, "postgres", func(context.Context, string, fs.FS) error { return failure })
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped register error, got %v", err)
	}
}

func TestVersions_MatchAcrossDialects(t *testing.T) {
	postgres, err := Versions(DialectPostgres)
	if err != nil {
		t.Fatalf("postgres versions: %v", err)
	}
	sqlite, err := Versions(DialectSQLite)
	if err != nil {
		t.Fatalf("sqlite versions: %v", err)
	}

	want := []string{"00001_messenger_queue", "00002_messenger_sessions"}
	if !slices.Equal(postgres, want) {
		t.Fatalf("expected %v, got %v", want, postgres)
	}
	if !slices.Equal(sqlite, postgres) {
		t.Fatalf("expected sqlite versions %v, got %v", postgres, sqlite)
	}

	if _, err := Versions("mysql"); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite3":  DialectSQLite,
		"SQLite":   DialectSQLite,
		"pgx":      DialectPostgres,
		"postgres": DialectPostgres,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil {
			t.Fatalf("%s: %v", driver, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", driver, want, got)
		}
	}
	if _, err := DialectForDriver("oracle"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := messenger.GetCoreMigrationsFS()
	for _, name := range []string{"00001_messenger_queue", "00002_messenger_sessions"} {
		for _, dir := range []string{"data/sql/migrations", "data/sql/migrations/sqlite"} {
			for _, direction := range []string{"up", "down"} {
				path := dir + "/" + name + "." + direction + ".sql"
				content, err := fs.ReadFile(root, path)
				if err != nil {
					t.Fatalf("read %s: %v", path, err)
				}
				if strings.TrimSpace(string(content)) == "" {
					t.Fatalf("expected sql in %s", path)
				}
			}
		}
	}
}

func TestSQLiteQueueMigration_EnforcesIdempotencyAndRollsBack(t *testing.T) {
	db := openSQLite(t, "file:migrations-queue?mode=memory&cache=shared&_foreign_keys=on")
	sqliteMigrations := sqliteTree(t)
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_messenger_queue.up.sql"); err != nil {
		t.Fatalf("apply queue migration: %v", err)
	}

	insert := `INSERT INTO messenger_queue_messages (id, exchange, queue, idempotency_key) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "m1", "MessengerBot", "messages", "key-1"); err != nil {
		t.Fatalf("insert m1: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "m2", "MessengerBot", "replies", "key-1"); err != nil {
		t.Fatalf("expected same key on another queue to be allowed: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "m3", "MessengerBot", "messages", "key-1"); err == nil {
		t.Fatalf("expected duplicate idempotency key on one queue to fail")
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO messenger_queue_messages (id, exchange, queue, idempotency_key, status) VALUES (?, ?, ?, ?, ?)`,
		"m4", "MessengerBot", "messages", "key-4", "unknown")
	if err == nil {
		t.Fatalf("expected status check to reject unknown status")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_messenger_queue.down.sql"); err != nil {
		t.Fatalf("roll back queue migration: %v", err)
	}
	if count := tableCount(t, db, "messenger_queue_messages"); count != 0 {
		t.Fatalf("expected queue table to be dropped, got %d", count)
	}
}

func TestSQLiteSessionMigration_UniqueNamespaceKey(t *testing.T) {
	db := openSQLite(t, "file:migrations-sessions?mode=memory&cache=shared&_foreign_keys=on")
	sqliteMigrations := sqliteTree(t)
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00002_messenger_sessions.up.sql"); err != nil {
		t.Fatalf("apply session migration: %v", err)
	}
	if count := tableCount(t, db, "messenger_sessions"); count != 1 {
		t.Fatalf("expected sessions table, got %d", count)
	}

	insert := `INSERT INTO messenger_sessions (id, namespace, session_key, value) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "s1", "page:user", "count", "1"); err != nil {
		t.Fatalf("insert s1: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "s2", "page:user", "count", "2"); err == nil {
		t.Fatalf("expected duplicate namespace and key to fail")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00002_messenger_sessions.down.sql"); err != nil {
		t.Fatalf("roll back session migration: %v", err)
	}
	if count := tableCount(t, db, "messenger_sessions"); count != 0 {
		t.Fatalf("expected sessions table to be dropped, got %d", count)
	}
}

func openSQLite(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sqliteTree(t *testing.T) fs.FS {
	t.Helper()
	sub, err := FS(DialectSQLite)
	if err != nil {
		t.Fatalf("sqlite tree: %v", err)
	}
	return sub
}

func tableCount(t *testing.T, db *sql.DB, name string) int {
	t.Helper()
	var count int
	err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`,
		name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count tables: %v", err)
	}
	return count
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
