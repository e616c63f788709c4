package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tpm/internal/db/driver"
)

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	d, err := Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = d.Close() }()

	assert.Equal(t, dbPath, d.Path())
	assert.Equal(t, driver.DialectSQLite, d.Dialect())

	mode, err := d.JournalMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	d, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, d.EnsureSchema(ctx))
	require.NoError(t, d.EnsureSchema(ctx))

	_, err = d.ExecContext(ctx, "INSERT INTO orgs (id, name, created_at) VALUES ('ORG-1', 'acme', ?)", FormatTime(time.Now()))
	require.NoError(t, err)
	require.NoError(t, d.Close())

	// Reopening an existing database must not re-run or lose anything.
	d, err = Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = d.Close() }()
	require.NoError(t, d.EnsureSchema(ctx))

	var count int
	require.NoError(t, d.QueryRowContext(ctx, "SELECT COUNT(*) FROM orgs").Scan(&count))
	assert.Equal(t, 1, count)

	version, err := d.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	for _, table := range []string{"orgs", "projects", "tickets", "tasks", "task_dependencies", "notes"} {
		var name string
		err := d.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestSchemaConstraints(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := NewTestDB(t)
	now := FormatTime(time.Now())

	exec := func(query string, args ...any) error {
		_, err := d.ExecContext(ctx, query, args...)
		return err
	}

	require.NoError(t, exec("INSERT INTO orgs (id, name, created_at) VALUES ('ORG-1', 'acme', ?)", now))
	require.NoError(t, exec("INSERT INTO projects (id, org_id, name, created_at) VALUES ('PROJ-1', 'ORG-1', 'api', ?)", now))

	err := exec("INSERT INTO projects (id, org_id, name, created_at) VALUES ('PROJ-2', 'ORG-1', 'api', ?)", now)
	assert.Equal(t, driver.ConstraintUnique, driver.ClassifyConstraint(err))

	err = exec("INSERT INTO projects (id, org_id, name, created_at) VALUES ('PROJ-3', 'ORG-missing', 'web', ?)", now)
	assert.Equal(t, driver.ConstraintForeignKey, driver.ClassifyConstraint(err))

	err = exec("INSERT INTO tickets (id, project_id, title, status, created_at) VALUES ('TICK-1', 'PROJ-1', 't', 'finished', ?)", now)
	assert.Equal(t, driver.ConstraintCheck, driver.ClassifyConstraint(err))

	err = exec("INSERT INTO orgs (id, name, created_at) VALUES ('ORG-2', '  ', ?)", now)
	assert.Equal(t, driver.ConstraintCheck, driver.ClassifyConstraint(err))

	require.NoError(t, exec("INSERT INTO tickets (id, project_id, title, created_at) VALUES ('TICK-1', 'PROJ-1', 't', ?)", now))
	require.NoError(t, exec("INSERT INTO tasks (id, ticket_id, title, created_at) VALUES ('TASK-1', 'TICK-1', 'a', ?)", now))
	require.NoError(t, exec("INSERT INTO tasks (id, ticket_id, title, created_at) VALUES ('TASK-2', 'TICK-1', 'b', ?)", now))

	err = exec("INSERT INTO task_dependencies (task_id, depends_on_id) VALUES ('TASK-1', 'TASK-1')")
	assert.Equal(t, driver.ConstraintCheck, driver.ClassifyConstraint(err))
	require.NoError(t, exec("INSERT INTO task_dependencies (task_id, depends_on_id) VALUES ('TASK-1', 'TASK-2')"))

	// Deleting the org cascades through every descendant table.
	require.NoError(t, exec("DELETE FROM orgs WHERE id = 'ORG-1'"))
	for _, table := range []string{"projects", "tickets", "tasks", "task_dependencies"} {
		var count int
		require.NoError(t, d.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count))
		assert.Zero(t, count, table)
	}
}

func TestRunInTx(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := NewTestDB(t)
	now := FormatTime(time.Now())

	boom := errors.New("boom")
	err := d.RunInTx(ctx, func(tx *TxOps) error {
		if _, err := tx.Exec("INSERT INTO orgs (id, name, created_at) VALUES ('ORG-1', 'a', ?)", now); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Panics(t, func() {
		_ = d.RunInTx(ctx, func(tx *TxOps) error {
			_, _ = tx.Exec("INSERT INTO orgs (id, name, created_at) VALUES ('ORG-2', 'b', ?)", now)
			panic("kaboom")
		})
	})

	var count int
	require.NoError(t, d.QueryRowContext(ctx, "SELECT COUNT(*) FROM orgs").Scan(&count))
	assert.Zero(t, count, "rolled back transactions must leave no rows")

	require.NoError(t, d.RunInTx(ctx, func(tx *TxOps) error {
		_, err := tx.Exec("INSERT INTO orgs (id, name, created_at) VALUES ('ORG-3', 'c', ?)", now)
		return err
	}))
	require.NoError(t, d.QueryRowContext(ctx, "SELECT COUNT(*) FROM orgs").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSavepoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := NewTestDB(t)
	now := FormatTime(time.Now())

	err := d.RunInTx(ctx, func(tx *TxOps) error {
		if _, err := tx.Exec("INSERT INTO orgs (id, name, created_at) VALUES ('ORG-1', 'kept', ?)", now); err != nil {
			return err
		}
		spErr := tx.Savepoint("sp_one", func(tx *TxOps) error {
			if _, err := tx.Exec("INSERT INTO orgs (id, name, created_at) VALUES ('ORG-2', 'undone', ?)", now); err != nil {
				return err
			}
			_, err := tx.Exec("INSERT INTO orgs (id, name, created_at) VALUES ('ORG-1', 'dup', ?)", now)
			return err
		})
		require.Error(t, spErr)
		assert.Equal(t, driver.ConstraintUnique, driver.ClassifyConstraint(spErr))

		return tx.Savepoint("sp_two", func(tx *TxOps) error {
			_, err := tx.Exec("INSERT INTO orgs (id, name, created_at) VALUES ('ORG-3', 'also kept', ?)", now)
			return err
		})
	})
	require.NoError(t, err)

	rows, err := d.QueryContext(ctx, "SELECT id FROM orgs ORDER BY id")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"ORG-1", "ORG-3"}, ids)

	err = d.RunInTx(ctx, func(tx *TxOps) error {
		return tx.Savepoint("bad name", func(*TxOps) error { return nil })
	})
	require.Error(t, err)
}

func TestReadTx(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := NewTestDB(t)

	_, err := d.ExecContext(ctx, "INSERT INTO orgs (id, name, created_at) VALUES ('ORG-1', 'a', ?)", FormatTime(time.Now()))
	require.NoError(t, err)

	var name string
	require.NoError(t, d.ReadTx(ctx, func(tx *TxOps) error {
		return tx.QueryRow("SELECT name FROM orgs WHERE id = ?", "ORG-1").Scan(&name)
	}))
	assert.Equal(t, "a", name)
}

func TestTimeFormat(t *testing.T) {
	t.Parallel()

	early := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	later := early.Add(100 * time.Millisecond)
	assert.Less(t, FormatTime(early), FormatTime(later))
	assert.Equal(t, "2024-01-02T03:04:05.000000000Z", FormatTime(early))

	parsed, err := ParseTime(FormatTime(later))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(later))

	loc := time.FixedZone("x", 3600)
	parsed, err = ParseTime(time.Date(2024, 1, 2, 4, 4, 5, 0, loc).Format(time.RFC3339))
	require.NoError(t, err)
	assert.Equal(t, early, parsed)

	_, err = ParseTime("yesterday")
	require.Error(t, err)
}
