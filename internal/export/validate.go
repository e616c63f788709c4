package export

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
)

// record identifies one entry of a document list by kind and position.
type record struct {
	kind  model.EntityKind
	index int
}

// kindDependency labels dependency entries, which have no entity kind.
const kindDependency model.EntityKind = "dependency"

// Validate checks a document against itself without touching storage:
// ids present and unique per kind, fields legal, and every reference
// resolvable inside the document. It reports every problem found.
func Validate(doc *Document) []errors.ItemError {
	problems, _ := validate(doc)
	return problems
}

func validate(doc *Document) ([]errors.ItemError, map[record]bool) {
	v := &validator{bad: make(map[record]bool)}

	if doc.Version != Version {
		v.problems = append(v.problems, errors.NewItemError("document", "",
			errors.Invalid("document", "version", fmt.Sprintf("unsupported version %q", doc.Version))))
	}

	orgs := v.ids(model.KindOrg, len(doc.Orgs), func(i int) string { return doc.Orgs[i].ID })
	for i := range doc.Orgs {
		o := &doc.Orgs[i]
		v.check(model.KindOrg, i, o.ID, o.Validate())
	}

	projects := v.ids(model.KindProject, len(doc.Projects), func(i int) string { return doc.Projects[i].ID })
	for i := range doc.Projects {
		p := &doc.Projects[i]
		if err := p.Validate(); err != nil {
			v.check(model.KindProject, i, p.ID, err)
			continue
		}
		v.check(model.KindProject, i, p.ID, resolves(orgs, model.KindOrg, p.OrgID))
	}

	tickets := v.ids(model.KindTicket, len(doc.Tickets), func(i int) string { return doc.Tickets[i].ID })
	for i := range doc.Tickets {
		t := &doc.Tickets[i]
		if err := t.Validate(); err != nil {
			v.check(model.KindTicket, i, t.ID, err)
			continue
		}
		v.check(model.KindTicket, i, t.ID, resolves(projects, model.KindProject, t.ProjectID))
	}

	tasks := v.ids(model.KindTask, len(doc.Tasks), func(i int) string { return doc.Tasks[i].ID })
	for i := range doc.Tasks {
		t := &doc.Tasks[i]
		if err := t.Validate(); err != nil {
			v.check(model.KindTask, i, t.ID, err)
			continue
		}
		v.check(model.KindTask, i, t.ID, resolves(tickets, model.KindTicket, t.TicketID))
	}

	v.ids(model.KindNote, len(doc.Notes), func(i int) string { return doc.Notes[i].ID })
	targets := map[model.EntityKind]map[string]bool{
		model.KindOrg:     orgs,
		model.KindProject: projects,
		model.KindTicket:  tickets,
		model.KindTask:    tasks,
	}
	for i := range doc.Notes {
		n := &doc.Notes[i]
		if err := n.Validate(); err != nil {
			v.check(model.KindNote, i, n.ID, err)
			continue
		}
		v.check(model.KindNote, i, n.ID, resolves(targets[n.EntityType], n.EntityType, n.EntityID))
	}

	seen := make(map[model.Dependency]bool, len(doc.Dependencies))
	for i, d := range doc.Dependencies {
		id := dependencyID(d)
		if err := d.Validate(); err != nil {
			v.check(kindDependency, i, id, err)
			continue
		}
		if seen[d] {
			v.check(kindDependency, i, id, errors.Conflict("dependency", "depends_on_id", d.DependsOnID, "the edge is listed twice"))
			continue
		}
		seen[d] = true
		if err := resolves(tasks, model.KindTask, d.TaskID); err != nil {
			v.check(kindDependency, i, id, err)
			continue
		}
		v.check(kindDependency, i, id, resolves(tasks, model.KindTask, d.DependsOnID))
	}

	return v.problems, v.bad
}

type validator struct {
	problems []errors.ItemError
	bad      map[record]bool
}

// check records err against the entry, if any.
func (v *validator) check(kind model.EntityKind, index int, id string, err error) {
	if err == nil {
		return
	}
	v.bad[record{kind, index}] = true
	v.problems = append(v.problems, errors.NewItemError(string(kind), id, err))
}

// ids collects the ids of one kind, flagging blank and duplicate ones.
// Only the first entry with a given id resolves references.
func (v *validator) ids(kind model.EntityKind, n int, id func(int) string) map[string]bool {
	set := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		s := id(i)
		switch {
		case strings.TrimSpace(s) == "":
			v.check(kind, i, s, errors.Required(string(kind), "id"))
		case set[s]:
			v.check(kind, i, s, errors.Conflict(string(kind), "id", s, "the id appears more than once in the document"))
		default:
			set[s] = true
		}
	}
	return set
}

func resolves(set map[string]bool, kind model.EntityKind, id string) error {
	if set[id] {
		return nil
	}
	return errors.NotFound(string(kind), id)
}

func dependencyID(d model.Dependency) string {
	return d.TaskID + "->" + d.DependsOnID
}
