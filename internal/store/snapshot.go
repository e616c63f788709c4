package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/tpm/internal/db"
	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
)

// Snapshot reads every table from one consistent read transaction.
type Snapshot struct {
	tx *db.TxOps
}

// Snapshot runs fn against a read-only view of the whole store.
func (s *Store) Snapshot(ctx context.Context, fn func(*Snapshot) error) error {
	return s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		return fn(&Snapshot{tx: tx})
	})
}

// Orgs returns every org, oldest first.
func (sn *Snapshot) Orgs() ([]model.Org, error) {
	return listOrgs(sn.tx)
}

// Projects returns every project, oldest first.
func (sn *Snapshot) Projects() ([]model.Project, error) {
	return listProjects(sn.tx, ProjectFilter{})
}

// Tickets returns every ticket, oldest first.
func (sn *Snapshot) Tickets() ([]model.Ticket, error) {
	return listTickets(sn.tx, TicketFilter{}, "", 0)
}

// Tasks returns every task, oldest first.
func (sn *Snapshot) Tasks() ([]model.Task, error) {
	return listTasks(sn.tx, TaskFilter{})
}

// Notes returns every note, oldest first.
func (sn *Snapshot) Notes() ([]model.Note, error) {
	return listNotes(sn.tx, model.NoteTarget{})
}

// Dependencies returns every dependency edge.
func (sn *Snapshot) Dependencies() ([]model.Dependency, error) {
	return listDependencies(sn.tx)
}

// Writer inserts fully formed rows, ids and timestamps included, inside a
// single transaction. Each insert is validated exactly as the create path
// validates, and parents must already exist.
type Writer struct {
	tx    *db.TxOps
	store *Store
}

// Restore runs fn in one write transaction. Any error from fn rolls back
// everything fn wrote.
func (s *Store) Restore(ctx context.Context, fn func(*Writer) error) error {
	return s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		return fn(&Writer{tx: tx, store: s})
	})
}

// Savepoint runs fn so that its failure undoes only its own writes.
func (w *Writer) Savepoint(name string, fn func(*Writer) error) error {
	return w.tx.Savepoint(name, func(*db.TxOps) error {
		return fn(w)
	})
}

// Clear deletes every row of every kind.
func (w *Writer) Clear() error {
	for _, table := range []string{"notes", "task_dependencies", "tasks", "tickets", "projects", "orgs"} {
		if _, err := w.tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	w.store.logger.DebugContext(w.tx.Context(), "cleared store")
	return nil
}

// InsertOrg inserts org verbatim.
func (w *Writer) InsertOrg(org *model.Org) error {
	if err := requireID(model.KindOrg, org.ID); err != nil {
		return err
	}
	if err := org.Validate(); err != nil {
		return err
	}
	w.defaultCreated(&org.CreatedAt)
	if err := insertOrg(w.tx, org); err != nil {
		return err
	}
	w.logInsert(model.KindOrg, org.ID)
	return nil
}

// InsertProject inserts p verbatim. The org must exist and the name must
// be unused within it.
func (w *Writer) InsertProject(p *model.Project) error {
	if err := requireID(model.KindProject, p.ID); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := requireParent(w.tx, model.KindOrg, "orgs", p.OrgID); err != nil {
		return err
	}
	if err := checkProjectName(w.tx, p.OrgID, p.Name, p.ID); err != nil {
		return err
	}
	w.defaultCreated(&p.CreatedAt)
	if err := insertProject(w.tx, p); err != nil {
		return err
	}
	w.logInsert(model.KindProject, p.ID)
	return nil
}

// InsertTicket inserts t verbatim. The project must exist.
func (w *Writer) InsertTicket(t *model.Ticket) error {
	if err := requireID(model.KindTicket, t.ID); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := requireParent(w.tx, model.KindProject, "projects", t.ProjectID); err != nil {
		return err
	}
	w.defaultCreated(&t.CreatedAt)
	if err := insertTicket(w.tx, t); err != nil {
		return err
	}
	w.logInsert(model.KindTicket, t.ID)
	return nil
}

// InsertTask inserts t verbatim. The ticket must exist.
func (w *Writer) InsertTask(t *model.Task) error {
	if err := requireID(model.KindTask, t.ID); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := requireParent(w.tx, model.KindTicket, "tickets", t.TicketID); err != nil {
		return err
	}
	w.defaultCreated(&t.CreatedAt)
	if err := insertTask(w.tx, t); err != nil {
		return err
	}
	w.logInsert(model.KindTask, t.ID)
	return nil
}

// InsertNote inserts n verbatim. Its target must exist.
func (w *Writer) InsertNote(n *model.Note) error {
	if err := requireID(model.KindNote, n.ID); err != nil {
		return err
	}
	if err := n.Validate(); err != nil {
		return err
	}
	if err := requireNoteTarget(w.tx, n.Target()); err != nil {
		return err
	}
	w.defaultCreated(&n.CreatedAt)
	if err := insertNote(w.tx, n); err != nil {
		return err
	}
	w.logInsert(model.KindNote, n.ID)
	return nil
}

// InsertDependency inserts a dependency edge. Both tasks must exist.
func (w *Writer) InsertDependency(dep model.Dependency) error {
	if err := dep.Validate(); err != nil {
		return err
	}
	if err := requireParent(w.tx, model.KindTask, "tasks", dep.TaskID); err != nil {
		return err
	}
	if err := requireParent(w.tx, model.KindTask, "tasks", dep.DependsOnID); err != nil {
		return err
	}
	return insertDependency(w.tx, dep)
}

// NewID returns a fresh id from the store's generator.
func (w *Writer) NewID(kind model.EntityKind) string {
	return w.store.newID(kind)
}

func (w *Writer) defaultCreated(t *time.Time) {
	if t.IsZero() {
		*t = w.store.timestamp()
	}
}

func (w *Writer) logInsert(kind model.EntityKind, id string) {
	w.store.logMutation(w.tx.Context(), "restored "+string(kind), kind, id)
}

func requireID(kind model.EntityKind, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.Required(string(kind), "id")
	}
	return nil
}
