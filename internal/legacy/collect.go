package legacy

import (
	stderrors "errors"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
)

// record is one legacy item waiting to be migrated.
type record struct {
	kind     model.EntityKind
	legacyID string
	// key identifies the record among its kind. Where nesting fixes the
	// parent (the directory layout and nested documents) it is qualified by
	// org and project, since ids there are only locally unique.
	key       string
	parentKey string
	// name is used when the record itself carries no name.
	name string
	// phase is the implementation plan phase a task was listed under.
	phase string
	data  gjson.Result
}

// keyed reports whether children may refer to the record.
func (r record) keyed() bool {
	return r.kind != model.KindNote && r.kind != kindDependency
}

const kindDependency model.EntityKind = "dependency"

// batch is everything found in a source, grouped by kind so that
// ancestors migrate before descendants.
type batch struct {
	orgs     []record
	projects []record
	tickets  []record
	tasks    []record
	notes    []record
	deps     []record
	problems []errors.ItemError
}

// collectDocument reads a single legacy JSON document. Nested and flat
// shapes may be mixed.
func collectDocument(data []byte) (*batch, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.Invalid("legacy", "document", "not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.Invalid("legacy", "document", "the document must be an object")
	}

	b := &batch{}
	root.Get("orgs").ForEach(func(_, org gjson.Result) bool {
		id := org.Get("id").String()
		b.orgs = append(b.orgs, record{kind: model.KindOrg, legacyID: id, key: id, data: org})
		org.Get("projects").ForEach(func(_, p gjson.Result) bool {
			b.addProject(p, id, p.Get("id").String(), id+"/")
			return true
		})
		return true
	})
	root.Get("projects").ForEach(func(_, p gjson.Result) bool {
		b.addProject(p, p.Get("org_id").String(), p.Get("id").String(), "")
		return true
	})
	for _, key := range []string{"features", "tickets"} {
		root.Get(key).ForEach(func(_, f gjson.Result) bool {
			b.addTicket(f, f.Get("project_id").String(), "")
			return true
		})
	}
	root.Get("tasks").ForEach(func(_, t gjson.Result) bool {
		ticket := firstString(t, "ticket_id", "feature_id")
		b.addTask(t, ticket, "", "")
		return true
	})

	for i, n := range root.Get("notes").Array() {
		id := n.Get("id").String()
		if id == "" {
			id = "notes[" + strconv.Itoa(i) + "]"
		}
		b.notes = append(b.notes, record{kind: model.KindNote, legacyID: id, data: n})
	}
	root.Get("task_dependencies").ForEach(func(_, d gjson.Result) bool {
		id := d.Get("task_id").String() + "->" + d.Get("depends_on_id").String()
		b.deps = append(b.deps, record{kind: kindDependency, legacyID: id, data: d})
		return true
	})
	return b, nil
}

// collectTree walks the legacy tracker directory.
func collectTree(fsys fs.FS) (*batch, error) {
	if _, err := fs.Stat(fsys, "index.json"); err != nil {
		return nil, errors.Invalid("legacy", "path", "index.json not found; not a legacy tracker directory").WithCause(err)
	}
	orgDirs, err := fs.ReadDir(fsys, "orgs")
	if err != nil {
		return nil, errors.Invalid("legacy", "path", "orgs directory not found").WithCause(err)
	}

	b := &batch{}
	for _, orgDir := range orgDirs {
		if !orgDir.IsDir() {
			continue
		}
		orgPath := path.Join("orgs", orgDir.Name())
		orgKey := slug(orgDir.Name())
		meta := b.readJSON(fsys, path.Join(orgPath, "org-meta.json"))
		b.orgs = append(b.orgs, record{
			kind:     model.KindOrg,
			legacyID: orgKey,
			key:      orgKey,
			name:     orgDir.Name(),
			data:     meta,
		})

		projDirs, err := fs.ReadDir(fsys, path.Join(orgPath, "projects"))
		if err != nil {
			continue
		}
		for _, projDir := range projDirs {
			if projDir.IsDir() {
				b.collectProjectDir(fsys, path.Join(orgPath, "projects", projDir.Name()), orgKey, projDir.Name())
			}
		}
	}
	return b, nil
}

func (b *batch) collectProjectDir(fsys fs.FS, dir, orgKey, name string) {
	meta := b.readJSON(fsys, path.Join(dir, "project-meta.json"))
	projKey := orgKey + "/" + slug(name)
	b.projects = append(b.projects, record{
		kind:      model.KindProject,
		legacyID:  slug(name),
		key:       projKey,
		parentKey: orgKey,
		name:      name,
		data:      meta,
	})

	scope := projKey + "/"
	roadmap := b.readJSON(fsys, path.Join(dir, "roadmap.json"))
	roadmap.Get("features").ForEach(func(_, f gjson.Result) bool {
		b.addTicket(f, projKey, scope)
		return true
	})

	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return
	}
	matches, err := doublestar.Glob(sub, "**/*-subtasks.json")
	if err != nil {
		b.problem("file", dir, err)
		return
	}
	sort.Strings(matches)
	for _, match := range matches {
		file := path.Join(dir, match)
		data := b.readJSON(fsys, file)
		if !data.Exists() {
			continue
		}
		featureID := data.Get("feature_id").String()
		if featureID == "" {
			b.problem("file", file, errors.Required("subtask file", "feature_id"))
			continue
		}
		data.Get("subtasks").ForEach(func(_, t gjson.Result) bool {
			b.addTask(t, scope+featureID, scope, "")
			return true
		})
	}
}

// readJSON parses an optional file. A missing file yields an empty result;
// an unreadable or malformed one is recorded as a problem.
func (b *batch) readJSON(fsys fs.FS, name string) gjson.Result {
	data, err := fs.ReadFile(fsys, name)
	if stderrors.Is(err, fs.ErrNotExist) {
		return gjson.Result{}
	}
	if err != nil {
		b.problem("file", name, err)
		return gjson.Result{}
	}
	if !gjson.ValidBytes(data) {
		b.problem("file", name, errors.Invalid("file", name, "not valid JSON"))
		return gjson.Result{}
	}
	return gjson.ParseBytes(data)
}

func (b *batch) problem(kind, id string, err error) {
	b.problems = append(b.problems, errors.NewItemError(kind, id, err))
}

// addProject queues a project and its embedded features. A non-empty
// scope qualifies the project key, and its children are then scoped by
// the project.
func (b *batch) addProject(p gjson.Result, orgKey, id, scope string) {
	key := ""
	if id != "" {
		key = scope + id
	}
	childScope := ""
	if scope != "" && key != "" {
		childScope = key + "/"
	}
	b.projects = append(b.projects, record{
		kind:      model.KindProject,
		legacyID:  id,
		key:       key,
		parentKey: orgKey,
		data:      p,
	})
	for _, field := range []string{"features", "tickets"} {
		p.Get(field).ForEach(func(_, f gjson.Result) bool {
			b.addTicket(f, key, childScope)
			return true
		})
	}
}

// addTicket queues a feature or ticket and the tasks embedded in it.
func (b *batch) addTicket(f gjson.Result, projKey, scope string) {
	id := f.Get("id").String()
	key := ""
	if id != "" {
		key = scope + id
	}
	b.tickets = append(b.tickets, record{
		kind:      model.KindTicket,
		legacyID:  id,
		key:       key,
		parentKey: projKey,
		data:      f,
	})

	f.Get("implementationPlan").ForEach(func(phase, plan gjson.Result) bool {
		if plan.IsObject() {
			plan.Get("tasks").ForEach(func(_, t gjson.Result) bool {
				b.addTask(t, key, scope, phase.String())
				return true
			})
		}
		return true
	})
	for _, field := range []string{"subTasks", "tasks"} {
		f.Get(field).ForEach(func(_, t gjson.Result) bool {
			b.addTask(t, key, scope, "")
			return true
		})
	}
}

func (b *batch) addTask(t gjson.Result, ticketKey, scope, phase string) {
	id := t.Get("id").String()
	key := ""
	if id != "" {
		key = scope + id
	}
	b.tasks = append(b.tasks, record{
		kind:      model.KindTask,
		legacyID:  id,
		key:       key,
		parentKey: ticketKey,
		phase:     phase,
		data:      t,
	})
}

// slug turns a directory name into a legacy id.
func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// firstString returns the first non-empty string among fields.
func firstString(r gjson.Result, fields ...string) string {
	for _, f := range fields {
		if s := r.Get(f).String(); s != "" {
			return s
		}
	}
	return ""
}
