package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/randalmurphal/tpm/internal/db/driver"
)

// TxRunner is implemented by anything that can scope work in a transaction.
type TxRunner interface {
	// RunInTx executes the given function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	RunInTx(ctx context.Context, fn func(tx *TxOps) error) error
}

// TxOps provides database operations within a transaction.
// The context is stored and used for all operations, enabling cancellation
// and timeout propagation through the entire transaction.
type TxOps struct {
	tx      driver.Tx
	dialect driver.Dialect
	ctx     context.Context
}

// Exec executes a query within the transaction.
func (t *TxOps) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(t.ctx, query, args...)
}

// Query executes a query that returns rows within the transaction.
func (t *TxOps) Query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.Query(t.ctx, query, args...)
}

// QueryRow executes a query that returns at most one row within the transaction.
func (t *TxOps) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(t.ctx, query, args...)
}

// Context returns the context associated with this transaction.
func (t *TxOps) Context() context.Context {
	return t.ctx
}

// Dialect returns the database dialect for dialect-specific SQL.
func (t *TxOps) Dialect() driver.Dialect {
	return t.dialect
}

var savepointName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Savepoint runs fn inside a named savepoint. When fn fails, only the work
// done since the savepoint is undone and the enclosing transaction stays
// usable.
func (t *TxOps) Savepoint(name string, fn func(tx *TxOps) error) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := t.Exec("SAVEPOINT " + name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}

	if err := fn(t); err != nil {
		if _, rbErr := t.Exec("ROLLBACK TO SAVEPOINT " + name); rbErr != nil {
			return fmt.Errorf("rollback to savepoint %s failed: %w (original error: %v)", name, rbErr, err)
		}
		if _, relErr := t.Exec("RELEASE SAVEPOINT " + name); relErr != nil {
			return fmt.Errorf("release savepoint %s failed: %w (original error: %v)", name, relErr, err)
		}
		return err
	}

	if _, err := t.Exec("RELEASE SAVEPOINT " + name); err != nil {
		return fmt.Errorf("release savepoint %s: %w", name, err)
	}
	return nil
}

// RunInTx executes the given function within a database transaction.
// If fn returns an error, the transaction is rolled back.
// If fn returns nil, the transaction is committed.
// A panic in fn rolls back before propagating.
func (d *DB) RunInTx(ctx context.Context, fn func(tx *TxOps) error) error {
	return d.runTx(ctx, nil, fn)
}

// ReadTx runs fn in a transaction that reads from one consistent snapshot.
// The transaction never writes; it is committed to release the snapshot.
func (d *DB) ReadTx(ctx context.Context, fn func(tx *TxOps) error) error {
	return d.runTx(ctx, d.driver.ReadOptions(), fn)
}

func (d *DB) runTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *TxOps) error) error {
	tx, err := d.driver.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	txOps := &TxOps{
		tx:      tx,
		dialect: d.Dialect(),
		ctx:     ctx,
	}

	if err := fn(txOps); err != nil {
		done = true
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	done = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
