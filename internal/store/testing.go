package store

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/tpm/internal/db"
)

// NewTestStore creates a store over a fresh in-memory database.
// Logging is discarded and the clock advances one millisecond per call so
// creation order is deterministic. opts override these defaults.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    s := store.NewTestStore(t)
//	    // use s...
//	}
func NewTestStore(t testing.TB, opts ...Option) *Store {
	t.Helper()

	defaults := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(StepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)),
	}
	return New(db.NewTestDB(t), append(defaults, opts...)...)
}

// StepClock returns a clock that starts at start and advances by step on
// every call.
func StepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(step)
		return t
	}
}
