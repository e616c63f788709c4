package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

// Options controls Import.
type Options struct {
	// Clear deletes every existing row first, in the same transaction.
	Clear bool
	// DryRun validates only.
	DryRun bool
	// Force skips invalid or failing records instead of aborting.
	Force bool
	// Logger receives the import summary. Defaults to slog.Default().
	Logger *slog.Logger
}

// Report describes what Import did.
type Report struct {
	Created store.Counts       `json:"created"`
	Errors  []errors.ItemError `json:"errors,omitempty"`
	Applied bool               `json:"applied"`
	DryRun  bool               `json:"dry_run"`
	Cleared bool               `json:"cleared"`
}

// Total is the number of records written.
func (r *Report) Total() int {
	c := r.Created
	return c.Orgs + c.Projects + c.Tickets + c.Tasks + c.Notes + c.Dependencies
}

// Err returns a *errors.PartialFailure when records were skipped, else nil.
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &errors.PartialFailure{Succeeded: r.Total(), Failures: r.Errors}
}

// Import loads doc into the store.
//
// The document is validated first. Without Force, any validation problem
// aborts before writing, and any write failure rolls back the whole
// transaction, including Clear. With Force, bad records are skipped and
// reported, and everything else commits.
func Import(ctx context.Context, s *store.Store, doc *Document, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	problems, bad := validate(doc)
	report := &Report{DryRun: opts.DryRun, Errors: problems}
	if opts.DryRun {
		return report, nil
	}
	if len(problems) > 0 && !opts.Force {
		return report, errors.Invalid("document", "records",
			fmt.Sprintf("%d invalid records; fix them or import with force", len(problems)))
	}

	im := &importer{report: report, bad: bad, force: opts.Force}
	err := s.Restore(ctx, func(w *store.Writer) error {
		if opts.Clear {
			if err := w.Clear(); err != nil {
				return err
			}
			report.Cleared = true
		}
		return im.apply(w, doc)
	})
	if err != nil {
		report.Created = store.Counts{}
		report.Cleared = false
		return report, err
	}

	report.Applied = true
	logger.InfoContext(ctx, "import applied",
		"records", report.Total(),
		"skipped", len(report.Errors),
		"cleared", report.Cleared,
	)
	return report, nil
}

type importer struct {
	report *Report
	bad    map[record]bool
	force  bool
}

// apply writes records parents first, each in its own savepoint.
func (im *importer) apply(w *store.Writer, doc *Document) error {
	c := &im.report.Created

	for i := range doc.Orgs {
		o := doc.Orgs[i]
		if err := im.write(w, model.KindOrg, i, o.ID, &c.Orgs, func(w *store.Writer) error { return w.InsertOrg(&o) }); err != nil {
			return err
		}
	}
	for i := range doc.Projects {
		p := doc.Projects[i]
		if err := im.write(w, model.KindProject, i, p.ID, &c.Projects, func(w *store.Writer) error { return w.InsertProject(&p) }); err != nil {
			return err
		}
	}
	for i := range doc.Tickets {
		t := doc.Tickets[i]
		if err := im.write(w, model.KindTicket, i, t.ID, &c.Tickets, func(w *store.Writer) error { return w.InsertTicket(&t) }); err != nil {
			return err
		}
	}
	for i := range doc.Tasks {
		t := doc.Tasks[i]
		if err := im.write(w, model.KindTask, i, t.ID, &c.Tasks, func(w *store.Writer) error { return w.InsertTask(&t) }); err != nil {
			return err
		}
	}
	for i := range doc.Notes {
		n := doc.Notes[i]
		if err := im.write(w, model.KindNote, i, n.ID, &c.Notes, func(w *store.Writer) error { return w.InsertNote(&n) }); err != nil {
			return err
		}
	}
	for i, d := range doc.Dependencies {
		if err := im.write(w, kindDependency, i, dependencyID(d), &c.Dependencies, func(w *store.Writer) error { return w.InsertDependency(d) }); err != nil {
			return err
		}
	}
	return nil
}

// write inserts one record. A failure is recorded against the record; it
// only aborts the import when force is off.
func (im *importer) write(w *store.Writer, kind model.EntityKind, index int, id string, count *int, fn func(*store.Writer) error) error {
	if im.bad[record{kind, index}] {
		return nil
	}
	err := w.Savepoint("import_record", fn)
	if err == nil {
		*count++
		return nil
	}
	im.report.Errors = append(im.report.Errors, errors.NewItemError(string(kind), id, err))
	if !im.force {
		return fmt.Errorf("import %s %s: %w", kind, id, err)
	}
	return nil
}
