// Package store is the entity store for the tracker hierarchy.
//
// Every operation runs in its own transaction on the wrapped *db.DB:
// writes through RunInTx, reads through a snapshot ReadTx. Validation
// happens before any write, and driver constraint failures are translated
// into the error taxonomy of internal/errors.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/tpm/internal/db"
	"github.com/randalmurphal/tpm/internal/db/driver"
	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
)

// Store provides validated access to orgs, projects, tickets, tasks,
// notes and task dependencies.
type Store struct {
	db     *db.DB
	logger *slog.Logger
	now    func() time.Time
	newID  func(model.EntityKind) string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for mutation records.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for created/started/completed stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the id source for new entities.
func WithIDGenerator(fn func(model.EntityKind) string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New wraps an open database. The caller owns d and closes it.
func New(d *db.DB, opts ...Option) *Store {
	s := &Store{
		db:     d,
		logger: slog.Default(),
		now:    time.Now,
		newID:  model.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle.
func (s *Store) DB() *db.DB {
	return s.db
}

func (s *Store) timestamp() time.Time {
	// Round-trip through the storage layout so returned rows equal stored rows.
	t, _ := db.ParseTime(db.FormatTime(s.now()))
	return t
}

// Counts holds the number of rows per kind.
type Counts struct {
	Orgs         int `json:"orgs"`
	Projects     int `json:"projects"`
	Tickets      int `json:"tickets"`
	Tasks        int `json:"tasks"`
	Notes        int `json:"notes"`
	Dependencies int `json:"task_dependencies"`
}

// Counts returns row counts for every table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		targets := []struct {
			table string
			dest  *int
		}{
			{"orgs", &c.Orgs},
			{"projects", &c.Projects},
			{"tickets", &c.Tickets},
			{"tasks", &c.Tasks},
			{"notes", &c.Notes},
			{"task_dependencies", &c.Dependencies},
		}
		for _, t := range targets {
			if err := tx.QueryRow("SELECT COUNT(*) FROM " + t.table).Scan(t.dest); err != nil {
				return fmt.Errorf("count %s: %w", t.table, err)
			}
		}
		return nil
	})
	return c, err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// exists reports whether a row with id is present in table.
func exists(tx *db.TxOps, table, id string) (bool, error) {
	var one int
	err := tx.QueryRow("SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", table, id, err)
	}
	return true, nil
}

// requireParent returns a NotFoundError unless id exists in table.
func requireParent(tx *db.TxOps, kind model.EntityKind, table, id string) error {
	ok, err := exists(tx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NotFound(string(kind), id)
	}
	return nil
}

// constraintError translates a driver constraint failure for a write of
// kind/id. Other errors are wrapped unchanged.
func constraintError(op string, kind model.EntityKind, id string, err error) error {
	switch driver.ClassifyConstraint(err) {
	case driver.ConstraintUnique:
		return (&errors.TrackerError{
			Code: errors.CodeConflict,
			Kind: string(kind),
			ID:   id,
			What: fmt.Sprintf("%s %s conflicts with an existing row", kind, id),
		}).WithCause(err)
	case driver.ConstraintCheck, driver.ConstraintNotNull:
		return (&errors.TrackerError{
			Code: errors.CodeValidation,
			Kind: string(kind),
			ID:   id,
			What: fmt.Sprintf("%s %s rejected by a schema check", kind, id),
		}).WithCause(err)
	case driver.ConstraintForeignKey:
		return errors.Integrity(string(kind), id, "a referenced row does not exist").WithCause(err)
	}
	return fmt.Errorf("%s %s %s: %w", op, kind, id, err)
}

// nullString maps "" to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// encodeList stores a string list as JSON text; empty lists are NULL.
func encodeList(xs []string) (any, error) {
	if len(xs) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(xs)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return string(data), nil
}

func decodeList(s sql.NullString) ([]string, error) {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil, nil
	}
	var xs []string
	if err := json.Unmarshal([]byte(s.String), &xs); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if len(xs) == 0 {
		return nil, nil
	}
	return xs, nil
}

func encodeMetadata(m model.Metadata) any {
	if m.IsNull() {
		return nil
	}
	return string(m.Normalize())
}

func decodeMetadata(s sql.NullString) model.Metadata {
	if !s.Valid {
		return nil
	}
	return model.Metadata(s.String).Normalize()
}

// normList drops empty lists so created and stored rows compare equal.
func normList(xs []string) []string {
	if len(xs) == 0 {
		return nil
	}
	return append([]string(nil), xs...)
}

func (s *Store) logMutation(ctx context.Context, msg string, kind model.EntityKind, id string, attrs ...any) {
	s.logger.DebugContext(ctx, msg, append([]any{"kind", string(kind), "id", id}, attrs...)...)
}
