// Package db provides database persistence for tpm.
//
// One database holds the whole hierarchy. SQLite is the default; a
// PostgreSQL DSN may be used instead. Schema migrations are embedded and
// applied by EnsureSchema.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/randalmurphal/tpm/internal/db/driver"
)

//go:embed schema/*.sql schema/postgres/*.sql
var schemaFS embed.FS

// DB is an open tracker database.
type DB struct {
	driver driver.Driver
	path   string
}

// Open opens the SQLite database file at path, creating its directory.
func Open(path string) (*DB, error) {
	return OpenWithDialect(path, driver.DialectSQLite)
}

// OpenInMemory opens a private in-memory SQLite database.
func OpenInMemory() (*DB, error) {
	d, err := OpenWithDialect(driver.MemoryDSN(), driver.DialectSQLite)
	if err != nil {
		return nil, err
	}
	d.path = ":memory:"
	return d, nil
}

// OpenWithDialect opens dsn with the given dialect. For SQLite files the
// parent directory is created when missing.
func OpenWithDialect(dsn string, dialect driver.Dialect) (*DB, error) {
	if dialect == driver.DialectSQLite && !driver.IsMemoryDSN(dsn) {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}
	return &DB{driver: drv, path: dsn}, nil
}

func (d *DB) Close() error {
	return d.driver.Close()
}

// Path returns the path or DSN the database was opened with.
func (d *DB) Path() string {
	return d.path
}

func (d *DB) Driver() driver.Driver {
	return d.driver
}

func (d *DB) Dialect() driver.Dialect {
	return d.driver.Dialect()
}

// EnsureSchema applies the embedded migrations that are not yet recorded.
// It is a no-op on an up-to-date database.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if err := d.driver.Migrate(ctx, schemaFS, string(d.Dialect())); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v sql.NullInt64
	if err := d.driver.QueryRow(ctx, "SELECT MAX(version) FROM _migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return int(v.Int64), nil
}

// JournalMode reports the SQLite journal mode, or "" for other dialects.
func (d *DB) JournalMode(ctx context.Context) (string, error) {
	lite, ok := d.driver.(*driver.SQLiteDriver)
	if !ok {
		return "", nil
	}
	return lite.JournalMode(ctx)
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.driver.Exec(ctx, query, args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.driver.Query(ctx, query, args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.driver.QueryRow(ctx, query, args...)
}
