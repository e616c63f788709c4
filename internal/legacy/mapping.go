package legacy

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

// statusAliases maps legacy status spellings onto current values.
var statusAliases = map[string]string{
	"completed":   "done",
	"complete":    "done",
	"open":        "backlog",
	"new":         "backlog",
	"todo":        "pending",
	"wip":         "in-progress",
	"in_progress": "in-progress",
	"inprogress":  "in-progress",
	"in progress": "in-progress",
	"analyzed":    "planned",
	"ready":       "planned",
	"cancelled":   "blocked",
	"canceled":    "blocked",
	"deferred":    "blocked",
}

// NormalizeStatus lowercases a legacy status and resolves known aliases.
// Unknown values pass through so validation can reject them.
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := statusAliases[s]; ok {
		return alias
	}
	return s
}

func ticketStatus(s string) model.TicketStatus {
	s = NormalizeStatus(s)
	if s == "" || s == "pending" {
		return model.TicketBacklog
	}
	return model.TicketStatus(s)
}

// taskStatus folds the ticket-only backlog states into pending.
func taskStatus(s string) model.TaskStatus {
	switch s = NormalizeStatus(s); s {
	case "", "backlog", "planned":
		return model.TaskPending
	default:
		return model.TaskStatus(s)
	}
}

func priority(s string) model.Priority {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return model.PriorityMedium
	}
	return model.Priority(s)
}

func complexity(s string) model.Complexity {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return model.ComplexityMedium
	}
	return model.Complexity(s)
}

// Rich legacy fields with no column of their own land in metadata.
var (
	ticketMetadataFields = []string{
		"architecture", "proposedStructure", "dependencies",
		"implementationConsiderations", "implementationPlan",
		"phase1Implementation", "phase2Implementation", "phase3Implementation",
		"technicalNotes", "achievements", "commits", "completionNotes",
		"progressNotes", "r2FolderStructure", "implementation",
		"backendDependencies",
	}
	taskMetadataFields = []string{
		"filesCreated", "filesModified", "files_to_modify",
		"testResults", "completionNotes",
		"technical_notes", "estimated_effort", "sequence_order",
		"layer",
	}
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// date reads the first present field among fields as a timestamp.
func date(r record, fields ...string) (*time.Time, error) {
	for _, f := range fields {
		res := r.data.Get(f)
		if !res.Exists() || res.Type == gjson.Null || res.String() == "" {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, res.String()); err == nil {
				t = t.UTC()
				return &t, nil
			}
		}
		return nil, errors.Invalid(string(r.kind), f, "unrecognized date "+res.String())
	}
	return nil, nil
}

func createdAt(r record) (time.Time, error) {
	t, err := date(r, "created", "created_at", "createdAt")
	if err != nil || t == nil {
		return time.Time{}, err
	}
	return *t, nil
}

// stringList accepts a JSON array of strings or a single string.
func stringList(res gjson.Result) []string {
	if res.Type == gjson.String {
		if s := strings.TrimSpace(res.String()); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	res.ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

func firstResult(r gjson.Result, fields ...string) gjson.Result {
	for _, f := range fields {
		if res := r.Get(f); res.Exists() {
			return res
		}
	}
	return gjson.Result{}
}

// acceptanceCriteria reads a plain list or a map of phase to list. Phase
// entries are prefixed with "[phase] ".
func acceptanceCriteria(data gjson.Result) []string {
	res := firstResult(data, "acceptanceCriteria", "acceptance_criteria")
	if !res.IsObject() {
		return stringList(res)
	}
	var out []string
	res.ForEach(func(phase, criteria gjson.Result) bool {
		for _, c := range stringList(criteria) {
			out = append(out, "["+phase.String()+"] "+c)
		}
		return true
	})
	return out
}

// harvest collects the non-empty named fields, plus any explicit
// metadata object, into one metadata value.
func harvest(data gjson.Result, fields []string, extra map[string]any) model.Metadata {
	out := make(map[string]any)
	if md := data.Get("metadata"); md.IsObject() {
		md.ForEach(func(k, v gjson.Result) bool {
			out[k.String()] = json.RawMessage(v.Raw)
			return true
		})
	}
	for _, f := range fields {
		if v := data.Get(f); meaningful(v) {
			out[f] = json.RawMessage(v.Raw)
		}
	}
	for k, v := range extra {
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return model.MustMetadata(out)
}

func meaningful(v gjson.Result) bool {
	switch {
	case !v.Exists(), v.Type == gjson.Null, v.Type == gjson.False:
		return false
	case v.Type == gjson.String:
		return v.String() != ""
	case v.IsArray():
		return len(v.Array()) > 0
	case v.IsObject():
		return len(v.Map()) > 0
	}
	return true
}

func (mg *migration) org(w *store.Writer, r record) (string, error) {
	org := &model.Org{
		ID:   w.NewID(model.KindOrg),
		Name: r.data.Get("name").String(),
	}
	if org.Name == "" {
		org.Name = r.name
	}
	var err error
	if org.CreatedAt, err = createdAt(r); err != nil {
		return "", err
	}
	return org.ID, w.InsertOrg(org)
}

func (mg *migration) project(w *store.Writer, r record) (string, error) {
	orgID, err := mg.resolve(model.KindOrg, r.parentKey)
	if err != nil {
		return "", err
	}
	p := &model.Project{
		ID:          w.NewID(model.KindProject),
		OrgID:       orgID,
		Name:        r.data.Get("name").String(),
		Description: r.data.Get("description").String(),
		RepoPath:    firstString(r.data, "repo_path", "repoPath", "repos.0.path"),
	}
	if p.Name == "" {
		p.Name = r.name
	}
	if p.CreatedAt, err = createdAt(r); err != nil {
		return "", err
	}
	return p.ID, w.InsertProject(p)
}

// ticket migrates a feature or ticket together with its string notes.
func (mg *migration) ticket(w *store.Writer, r record) (string, error) {
	projectID, err := mg.resolve(model.KindProject, r.parentKey)
	if err != nil {
		return "", err
	}
	d := r.data
	t := &model.Ticket{
		ID:                 w.NewID(model.KindTicket),
		ProjectID:          projectID,
		Title:              strings.TrimSpace(d.Get("title").String()),
		Description:        d.Get("description").String(),
		Status:             ticketStatus(d.Get("status").String()),
		Priority:           priority(d.Get("priority").String()),
		Assignees:          stringList(d.Get("assignees")),
		Tags:               stringList(d.Get("tags")),
		RelatedRepos:       stringList(firstResult(d, "relatedRepos", "related_repos")),
		AcceptanceCriteria: acceptanceCriteria(d),
		Blockers:           stringList(d.Get("blockers")),
		Metadata:           harvest(d, ticketMetadataFields, nil),
	}
	if t.CreatedAt, err = createdAt(r); err != nil {
		return "", err
	}
	if t.StartedAt, err = date(r, "started", "started_at", "startedAt"); err != nil {
		return "", err
	}
	if t.CompletedAt, err = date(r, "completed", "completed_at", "completedAt"); err != nil {
		return "", err
	}
	if err := w.InsertTicket(t); err != nil {
		return "", err
	}

	for _, n := range d.Get("notes").Array() {
		content := n.String()
		if n.IsObject() {
			content = firstString(n, "content", "text")
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		note := &model.Note{
			ID:         w.NewID(model.KindNote),
			EntityType: model.KindTicket,
			EntityID:   t.ID,
			Content:    content,
		}
		if err := w.InsertNote(note); err != nil {
			return "", err
		}
		mg.notes++
	}
	return t.ID, nil
}

func (mg *migration) task(w *store.Writer, r record) (string, error) {
	ticketID, err := mg.resolve(model.KindTicket, r.parentKey)
	if err != nil {
		return "", err
	}
	d := r.data

	title := strings.TrimSpace(d.Get("title").String())
	details := d.Get("details").String()
	if r.phase != "" {
		// Plan tasks are titled by their description.
		if desc := strings.TrimSpace(d.Get("description").String()); desc != "" {
			title = desc
		}
	} else if title == "" {
		title = strings.TrimSpace(d.Get("description").String())
	} else if details == "" {
		details = d.Get("description").String()
	}

	var extra map[string]any
	if r.phase != "" {
		extra = map[string]any{"phase": r.phase}
	}
	t := &model.Task{
		ID:                 w.NewID(model.KindTask),
		TicketID:           ticketID,
		Title:              title,
		Details:            details,
		Status:             taskStatus(d.Get("status").String()),
		Priority:           priority(d.Get("priority").String()),
		Complexity:         complexity(d.Get("complexity").String()),
		AcceptanceCriteria: acceptanceCriteria(d),
		Metadata:           harvest(d, taskMetadataFields, extra),
	}
	if t.CreatedAt, err = createdAt(r); err != nil {
		return "", err
	}
	if t.CompletedAt, err = date(r, "completedDate", "completed", "completed_at", "completedAt"); err != nil {
		return "", err
	}
	return t.ID, w.InsertTask(t)
}

// note migrates a flat-shape note. "feature" targets are tickets.
func (mg *migration) note(w *store.Writer, r record) (string, error) {
	kindName := strings.ToLower(r.data.Get("entity_type").String())
	if kindName == "feature" {
		kindName = string(model.KindTicket)
	}
	kind, err := model.ParseNoteTargetKind(kindName)
	if err != nil {
		return "", err
	}
	targetID, err := mg.resolve(kind, r.data.Get("entity_id").String())
	if err != nil {
		return "", err
	}
	n := &model.Note{
		ID:         w.NewID(model.KindNote),
		EntityType: kind,
		EntityID:   targetID,
		Content:    r.data.Get("content").String(),
	}
	if n.CreatedAt, err = createdAt(r); err != nil {
		return "", err
	}
	return n.ID, w.InsertNote(n)
}

func (mg *migration) dependency(w *store.Writer, r record) (string, error) {
	taskID, err := mg.resolve(model.KindTask, r.data.Get("task_id").String())
	if err != nil {
		return "", err
	}
	dependsOnID, err := mg.resolve(model.KindTask, r.data.Get("depends_on_id").String())
	if err != nil {
		return "", err
	}
	return "", w.InsertDependency(model.Dependency{TaskID: taskID, DependsOnID: dependsOnID})
}
