package db

import (
	"context"
	"testing"
)

// NewTestDB creates an in-memory database with the schema applied.
// The database is automatically closed when the test completes.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    d := db.NewTestDB(t)
//	    // use d...
//	}
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	d, err := OpenInMemory()
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}

	t.Cleanup(func() {
		_ = d.Close()
	})

	if err := d.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("apply test schema: %v", err)
	}

	return d
}
