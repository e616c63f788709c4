package legacy

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

func TestNormalizeStatus(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"completed":   "done",
		" Completed ": "done",
		"open":        "backlog",
		"new":         "backlog",
		"todo":        "pending",
		"WIP":         "in-progress",
		"in_progress": "in-progress",
		"inprogress":  "in-progress",
		"analyzed":    "planned",
		"ready":       "planned",
		"cancelled":   "blocked",
		"deferred":    "blocked",
		"done":        "done",
		"someday":     "someday",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeStatus(in), in)
	}

	assert.Equal(t, model.TicketBacklog, ticketStatus(""))
	assert.Equal(t, model.TaskPending, taskStatus("open"))
	assert.Equal(t, model.TaskPending, taskStatus("ready"))
	assert.Equal(t, model.TaskDone, taskStatus("completed"))
}

const flatDoc = `{
  "orgs": [{"id": "o1", "name": "Acme", "created_at": "2023-05-01T10:00:00Z"}],
  "projects": [{"id": "p1", "org_id": "o1", "name": "api", "repo_path": "/src/api"}],
  "tickets": [
    {"id": "t1", "project_id": "p1", "title": "Login", "status": "wip", "priority": "HIGH",
     "related_repos": ["web"], "blockers": ["design"], "acceptance_criteria": ["works"]}
  ],
  "tasks": [
    {"id": "k1", "ticket_id": "t1", "title": "Form", "status": "completed", "completedDate": "2023-05-02"},
    {"id": "k2", "ticket_id": "t1", "description": "Session storage", "complexity": "Complex"}
  ],
  "notes": [
    {"entity_type": "feature", "entity_id": "t1", "content": "reviewed"},
    {"entity_type": "org", "entity_id": "o1", "content": "kickoff"}
  ],
  "task_dependencies": [{"task_id": "k2", "depends_on_id": "k1"}]
}`

func TestMigrateDocument_Flat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t)

	stats, err := New(s).MigrateDocument(ctx, []byte(flatDoc))
	require.NoError(t, err)
	assert.Empty(t, stats.Errors)
	assert.NoError(t, stats.Err())
	assert.Equal(t, store.Counts{Orgs: 1, Projects: 1, Tickets: 1, Tasks: 2, Notes: 2, Dependencies: 1}, stats.Created)

	orgs, err := s.ListOrgs(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "Acme", orgs[0].Name)
	assert.Regexp(t, `^ORG-`, orgs[0].ID)
	assert.Equal(t, 2023, orgs[0].CreatedAt.Year())

	tickets, err := s.ListTickets(ctx, store.TicketFilter{})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	tick := tickets[0]
	assert.Equal(t, model.TicketInProgress, tick.Status)
	assert.Equal(t, model.PriorityHigh, tick.Priority)
	assert.Equal(t, []string{"web"}, tick.RelatedRepos)
	assert.Equal(t, []string{"design"}, tick.Blockers)

	tasks, err := s.ListTasks(ctx, store.TaskFilter{TicketID: tick.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, model.TaskDone, tasks[0].Status)
	require.NotNil(t, tasks[0].CompletedAt)
	assert.Equal(t, "Session storage", tasks[1].Title)
	assert.Equal(t, model.ComplexityComplex, tasks[1].Complexity)

	deps, err := s.ListDependencies(ctx, tasks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{tasks[0].ID}, deps)

	notes, err := s.ListNotes(ctx, model.NoteTarget{Kind: model.KindTicket, ID: tick.ID})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "reviewed", notes[0].Content)
}

const nestedDoc = `{
  "orgs": [{
    "id": "acme", "name": "Acme",
    "projects": [{
      "id": "web", "name": "Web", "description": "Storefront",
      "features": [{
        "id": "FEAT-001", "title": "Checkout", "status": "completed", "priority": "critical",
        "created": "2023-01-02", "completed": "2023-02-03T04:05:06Z",
        "relatedRepos": ["payments"],
        "acceptanceCriteria": {"phase1": ["cart totals"], "phase2": ["receipts"]},
        "technicalNotes": "uses stripe",
        "commits": [],
        "notes": ["shipped early", ""],
        "implementationPlan": {
          "phase1": {"tasks": [{"id": "T1", "description": "Cart", "status": "completed"}]},
          "summary": "not a phase"
        },
        "subTasks": [{"id": "S1", "title": "Receipt email", "description": "send on success", "status": "todo"}]
      }]
    }]
  }]
}`

func TestMigrateDocument_Nested(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t)

	stats, err := New(s).MigrateDocument(ctx, []byte(nestedDoc))
	require.NoError(t, err)
	require.Empty(t, stats.Errors)
	assert.Equal(t, store.Counts{Orgs: 1, Projects: 1, Tickets: 1, Tasks: 2, Notes: 1}, stats.Created)

	projects, err := s.ListProjects(ctx, store.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Storefront", projects[0].Description)

	tickets, err := s.ListTickets(ctx, store.TicketFilter{ProjectID: projects[0].ID})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	tick := tickets[0]
	assert.Equal(t, "Checkout", tick.Title)
	assert.Equal(t, model.TicketDone, tick.Status)
	assert.Equal(t, model.PriorityCritical, tick.Priority)
	assert.Equal(t, []string{"payments"}, tick.RelatedRepos)
	assert.Equal(t, []string{"[phase1] cart totals", "[phase2] receipts"}, tick.AcceptanceCriteria)
	require.NotNil(t, tick.CompletedAt)
	assert.Equal(t, 2023, tick.CreatedAt.Year())

	md, err := tick.Metadata.Decode()
	require.NoError(t, err)
	fields := md.(map[string]any)
	assert.Equal(t, "uses stripe", fields["technicalNotes"])
	assert.Contains(t, fields, "implementationPlan")
	assert.NotContains(t, fields, "commits")

	tasks, err := s.ListTasks(ctx, store.TaskFilter{TicketID: tick.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Cart", tasks[0].Title)
	assert.Equal(t, model.TaskDone, tasks[0].Status)
	assert.Equal(t, "Receipt email", tasks[1].Title)
	assert.Equal(t, "send on success", tasks[1].Details)
	assert.Equal(t, model.TaskPending, tasks[1].Status)

	taskMD, err := tasks[0].Metadata.Decode()
	require.NoError(t, err)
	assert.Equal(t, "phase1", taskMD.(map[string]any)["phase"])
}

func TestMigrateDocument_NestedIDsScopedByParent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t)

	doc := `{
	  "orgs": [
	    {"id": "acme", "name": "Acme", "projects": [{"id": "api", "name": "api",
	      "features": [{"id": "F1", "title": "Login",
	        "subTasks": [{"id": "t1", "title": "Form"}, {"id": "a2", "title": "Submit"}]}]}]},
	    {"id": "globex", "name": "Globex", "projects": [{"id": "api", "name": "api",
	      "features": [{"id": "F1", "title": "Signup",
	        "subTasks": [{"id": "t1", "title": "Captcha"}]}]}]}
	  ],
	  "notes": [{"id": "n1", "entity_type": "feature", "entity_id": "F1", "content": "which one?"}],
	  "task_dependencies": [{"task_id": "a2", "depends_on_id": "a2"}]
	}`

	stats, err := New(s).MigrateDocument(ctx, []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Orgs: 2, Projects: 2, Tickets: 2, Tasks: 3}, stats.Created)

	// F1 names a feature in both orgs, so a flat reference to it is
	// ambiguous. a2 is unique and resolves, then fails as a self-dependency.
	require.Len(t, stats.Errors, 2)
	assert.Equal(t, "note", stats.Errors[0].Kind)
	assert.Equal(t, errors.CodeNotFound, stats.Errors[0].Code)
	assert.Equal(t, "dependency", stats.Errors[1].Kind)
	assert.Equal(t, errors.CodeValidation, stats.Errors[1].Code)

	orgs, err := s.ListOrgs(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	titles := map[string][]string{}
	for _, org := range orgs {
		projects, err := s.ListProjects(ctx, store.ProjectFilter{OrgID: org.ID})
		require.NoError(t, err)
		require.Len(t, projects, 1)
		tickets, err := s.ListTickets(ctx, store.TicketFilter{ProjectID: projects[0].ID})
		require.NoError(t, err)
		require.Len(t, tickets, 1)
		tasks, err := s.ListTasks(ctx, store.TaskFilter{TicketID: tickets[0].ID})
		require.NoError(t, err)
		for _, task := range tasks {
			titles[org.Name] = append(titles[org.Name], tickets[0].Title+"/"+task.Title)
		}
	}
	assert.ElementsMatch(t, []string{"Login/Form", "Login/Submit"}, titles["Acme"])
	assert.Equal(t, []string{"Signup/Captcha"}, titles["Globex"])
}

func TestMigrateDocument_TaskTitles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t)

	doc := `{"orgs": [{"id": "o", "name": "Acme", "projects": [{"id": "p", "name": "api",
	  "features": [{"id": "F1", "title": "Login",
	    "implementationPlan": {"phase1": {"tasks": [
	      {"id": "T1", "title": "short", "description": "Wire the form", "details": "use htmx"},
	      {"id": "T2", "title": "Only a title"}
	    ]}},
	    "subTasks": [{"id": "S1", "title": "Receipt", "description": "send on success"}]}]}]}]}`

	stats, err := New(s).MigrateDocument(ctx, []byte(doc))
	require.NoError(t, err)
	require.Empty(t, stats.Errors)

	tasks, err := s.ListTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	byTitle := map[string]model.Task{}
	for _, task := range tasks {
		byTitle[task.Title] = task
	}
	require.Len(t, byTitle, 3)
	assert.Equal(t, "use htmx", byTitle["Wire the form"].Details)
	assert.Contains(t, byTitle, "Only a title")
	assert.Equal(t, "send on success", byTitle["Receipt"].Details)
}

func TestMigrateDocument_PartialFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t)

	doc := `{
	  "orgs": [{"id": "o1", "name": "Acme"}],
	  "projects": [{"id": "p1", "org_id": "o1", "name": "api"}],
	  "features": [
	    {"id": "F1", "project_id": "p1", "title": "One"},
	    {"id": "F2", "project_id": "p1", "title": "Two"},
	    {"id": "F3", "project_id": "p1", "title": "Three"},
	    {"id": "F4", "project_id": "p1"},
	    {"id": "F5", "project_id": "p1", "title": "Five"},
	    {"id": "F6", "project_id": "p1", "title": "Six"}
	  ]
	}`

	stats, err := New(s).MigrateDocument(ctx, []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Created.Tickets)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "ticket", stats.Errors[0].Kind)
	assert.Equal(t, "F4", stats.Errors[0].ID)
	assert.Equal(t, errors.CodeValidation, stats.Errors[0].Code)

	var pf *errors.PartialFailure
	require.True(t, stderrors.As(stats.Err(), &pf))
	assert.Equal(t, 7, pf.Succeeded)

	tickets, err := s.ListTickets(ctx, store.TicketFilter{})
	require.NoError(t, err)
	assert.Len(t, tickets, 5)
}

func TestMigrateDocument_BadRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t)

	doc := `{
	  "orgs": [{"id": "o1", "name": "Acme"}, {"name": "No id"}],
	  "projects": [
	    {"id": "p1", "org_id": "o1", "name": "api"},
	    {"id": "p2", "org_id": "o1", "name": "api"},
	    {"id": "p3", "org_id": "missing", "name": "web"}
	  ],
	  "tickets": [
	    {"id": "t1", "project_id": "p1", "title": "Bad status", "status": "someday"},
	    {"id": "t2", "project_id": "p2", "title": "Orphan of failed project"},
	    {"id": "t3", "project_id": "p1", "title": "Fine"},
	    {"id": "t3", "project_id": "p1", "title": "Duplicate id"}
	  ],
	  "tasks": [{"id": "k1", "ticket_id": "t1", "title": "Orphan of bad ticket"}],
	  "task_dependencies": [{"task_id": "k1", "depends_on_id": "k9"}]
	}`

	stats, err := New(s).MigrateDocument(ctx, []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Orgs: 1, Projects: 1, Tickets: 1}, stats.Created)

	reasons := map[string]errors.Code{}
	for _, e := range stats.Errors {
		reasons[e.Kind+" "+e.ID] = e.Code
	}
	assert.Equal(t, map[string]errors.Code{
		"org ":              errors.CodeValidation,
		"project p2":        errors.CodeConflict,
		"project p3":        errors.CodeNotFound,
		"ticket t1":         errors.CodeValidation,
		"ticket t2":         errors.CodeNotFound,
		"ticket t3":         errors.CodeConflict,
		"task k1":           errors.CodeNotFound,
		"dependency k1->k9": errors.CodeNotFound,
	}, reasons)
}

func TestMigrateDocument_Invalid(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t)

	_, err := New(s).MigrateDocument(context.Background(), []byte("not json"))
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = New(s).MigrateDocument(context.Background(), []byte(`["array"]`))
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestMigrate_Tree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := store.NewTestStore(t)
	root := t.TempDir()

	writeFile(t, root, "index.json", `{"orgs": ["Acme Corp", "Globex"]}`)
	writeFile(t, root, "orgs/Acme Corp/org-meta.json", `{"name": "Acme Corporation", "created": "2022-03-04"}`)
	writeFile(t, root, "orgs/Acme Corp/projects/api/project-meta.json",
		`{"name": "API", "description": "Backend", "repos": [{"path": "/src/api"}]}`)
	writeFile(t, root, "orgs/Acme Corp/projects/api/roadmap.json", `{"features": [
	  {"id": "FEAT-001", "title": "Auth", "status": "analyzed", "notes": ["needs SSO"]},
	  {"id": "FEAT-002", "title": "Billing"}
	]}`)
	writeFile(t, root, "orgs/Acme Corp/projects/api/FEAT-001-subtasks.json", `{
	  "feature_id": "FEAT-001",
	  "subtasks": [{"id": "ST-1", "title": "Token refresh", "status": "completed"}]
	}`)
	writeFile(t, root, "orgs/Acme Corp/projects/api/archive/FEAT-404-subtasks.json", `{
	  "feature_id": "FEAT-404",
	  "subtasks": [{"id": "ST-9", "title": "Lost"}]
	}`)
	// Same feature id in another project resolves to that project's ticket.
	writeFile(t, root, "orgs/Globex/projects/web/roadmap.json", `{"features": [{"id": "FEAT-001", "title": "Landing"}]}`)
	writeFile(t, root, "orgs/Globex/projects/web/broken-subtasks.json", `{nope`)

	stats, err := New(s).Migrate(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Orgs: 2, Projects: 2, Tickets: 3, Tasks: 1, Notes: 1}, stats.Created)
	require.Len(t, stats.Errors, 2)
	assert.Equal(t, "file", stats.Errors[0].Kind)
	assert.Contains(t, stats.Errors[0].ID, "broken-subtasks.json")
	assert.Equal(t, "task", stats.Errors[1].Kind)
	assert.Equal(t, "ST-9", stats.Errors[1].ID)

	orgs, err := s.ListOrgs(ctx)
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "Acme Corporation", orgs[0].Name)
	assert.Equal(t, "Globex", orgs[1].Name)

	projects, err := s.ListProjects(ctx, store.ProjectFilter{OrgID: orgs[0].ID})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "API", projects[0].Name)
	assert.Equal(t, "/src/api", projects[0].RepoPath)

	tickets, err := s.ListTickets(ctx, store.TicketFilter{ProjectID: projects[0].ID})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, model.TicketPlanned, tickets[0].Status)

	withTasks, err := s.GetTicketWithTasks(ctx, tickets[0].ID)
	require.NoError(t, err)
	require.Len(t, withTasks.Tasks, 1)
	assert.Equal(t, "Token refresh", withTasks.Tasks[0].Title)
}

func TestMigrate_NotATracker(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t)

	_, err := New(s).Migrate(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = New(s).Migrate(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMigrate_File(t *testing.T) {
	t.Parallel()
	s := store.NewTestStore(t)
	root := t.TempDir()
	writeFile(t, root, "legacy.json", nestedDoc)

	stats, err := New(s).Migrate(context.Background(), filepath.Join(root, "legacy.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created.Tickets)
}
