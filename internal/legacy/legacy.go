// Package legacy migrates data from the older JSON project tracker into
// the store.
//
// Three source shapes are accepted: the on-disk tracker directory
// (index.json plus orgs/<org>/projects/<project>/roadmap.json), a single
// JSON document nesting orgs -> projects -> features, and a single flat
// JSON document with one top-level array per kind. Every migrated record
// gets a fresh id; legacy ids only link children to parents.
//
// Migration continues past malformed records. Each record commits in its
// own transaction, and failures are collected into Stats.
package legacy

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

// Stats summarizes a migration.
type Stats struct {
	Created store.Counts       `json:"created"`
	Errors  []errors.ItemError `json:"errors,omitempty"`
}

// Total is the number of records created.
func (s *Stats) Total() int {
	c := s.Created
	return c.Orgs + c.Projects + c.Tickets + c.Tasks + c.Notes + c.Dependencies
}

// Err returns a *errors.PartialFailure when any record failed, else nil.
func (s *Stats) Err() error {
	if len(s.Errors) == 0 {
		return nil
	}
	return &errors.PartialFailure{Succeeded: s.Total(), Failures: s.Errors}
}

// Migrator loads legacy data into a store.
type Migrator struct {
	store  *store.Store
	logger *slog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger for per-record failures and the summary.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Migrator writing to s.
func New(s *store.Store, opts ...Option) *Migrator {
	m := &Migrator{store: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Migrate reads a legacy tracker directory or a single legacy JSON file.
func (m *Migrator) Migrate(ctx context.Context, path string) (*Stats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open legacy source: %w", err)
	}

	if info.IsDir() {
		b, err := collectTree(os.DirFS(path))
		if err != nil {
			return nil, err
		}
		return m.run(ctx, b), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read legacy source: %w", err)
	}
	return m.MigrateDocument(ctx, data)
}

// MigrateDocument migrates a single legacy JSON document, nested or flat.
func (m *Migrator) MigrateDocument(ctx context.Context, data []byte) (*Stats, error) {
	b, err := collectDocument(data)
	if err != nil {
		return nil, err
	}
	return m.run(ctx, b), nil
}

// migration is the state of one run: the legacy-key to new-id table per
// kind, filled ancestors first.
type migration struct {
	*Migrator
	ctx   context.Context
	stats *Stats
	ids   map[model.EntityKind]map[string]string
	// aliases maps a bare legacy id to its new id so flat records can
	// refer to scoped ones. "" marks an id used under more than one scope.
	aliases map[model.EntityKind]map[string]string
	seen    map[model.EntityKind]map[string]bool
	notes   int
}

func (m *Migrator) run(ctx context.Context, b *batch) *Stats {
	mg := &migration{
		Migrator: m,
		ctx:      ctx,
		stats:    &Stats{Errors: b.problems},
		ids:      make(map[model.EntityKind]map[string]string),
		aliases:  make(map[model.EntityKind]map[string]string),
		seen:     make(map[model.EntityKind]map[string]bool),
	}
	for _, p := range b.problems {
		m.logger.WarnContext(ctx, "legacy source problem", "kind", p.Kind, "id", p.ID, "reason", p.Reason)
	}

	c := &mg.stats.Created
	for _, r := range b.orgs {
		mg.migrate(r, &c.Orgs, mg.org)
	}
	for _, r := range b.projects {
		mg.migrate(r, &c.Projects, mg.project)
	}
	for _, r := range b.tickets {
		mg.migrate(r, &c.Tickets, mg.ticket)
	}
	for _, r := range b.tasks {
		mg.migrate(r, &c.Tasks, mg.task)
	}
	for _, r := range b.notes {
		mg.migrate(r, &c.Notes, mg.note)
	}
	for _, r := range b.deps {
		mg.migrate(r, &c.Dependencies, mg.dependency)
	}

	m.logger.InfoContext(ctx, "legacy migration finished",
		"orgs", c.Orgs,
		"projects", c.Projects,
		"tickets", c.Tickets,
		"tasks", c.Tasks,
		"notes", c.Notes,
		"dependencies", c.Dependencies,
		"errors", len(mg.stats.Errors),
	)
	return mg.stats
}

// migrate commits one record in its own transaction.
func (mg *migration) migrate(r record, count *int, build func(*store.Writer, record) (string, error)) {
	if r.keyed() {
		if r.key == "" {
			mg.fail(r, errors.Required(string(r.kind), "id"))
			return
		}
		if mg.seen[r.kind][r.key] {
			mg.fail(r, errors.Conflict(string(r.kind), "id", r.legacyID, "the legacy id appears more than once"))
			return
		}
		mark(mg.seen, r.kind, r.key, true)
	}

	mg.notes = 0
	var newID string
	err := mg.store.Restore(mg.ctx, func(w *store.Writer) error {
		id, err := build(w, r)
		newID = id
		return err
	})
	if err != nil {
		mg.fail(r, err)
		return
	}

	*count++
	mg.stats.Created.Notes += mg.notes
	if r.keyed() {
		mark(mg.ids, r.kind, r.key, newID)
		if r.legacyID != "" && r.legacyID != r.key {
			if _, dup := mg.aliases[r.kind][r.legacyID]; dup {
				newID = ""
			}
			mark(mg.aliases, r.kind, r.legacyID, newID)
		}
	}
}

func (mg *migration) fail(r record, err error) {
	item := errors.NewItemError(string(r.kind), r.legacyID, err)
	mg.stats.Errors = append(mg.stats.Errors, item)
	mg.logger.WarnContext(mg.ctx, "legacy record skipped", "kind", item.Kind, "legacy_id", item.ID, "reason", item.Reason)
}

// resolve maps a parent's legacy key to the id it was migrated to.
func (mg *migration) resolve(kind model.EntityKind, key string) (string, error) {
	if key == "" {
		return "", errors.Required(string(kind), "parent id")
	}
	if id, ok := mg.ids[kind][key]; ok {
		return id, nil
	}
	if id := mg.aliases[kind][key]; id != "" {
		return id, nil
	}
	return "", errors.NotFound(string(kind), key)
}

func mark[V any](m map[model.EntityKind]map[string]V, kind model.EntityKind, key string, v V) {
	if m[kind] == nil {
		m[kind] = make(map[string]V)
	}
	m[kind][key] = v
}
