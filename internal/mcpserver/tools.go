package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

func (s *Server) registerEntityTools() {
	s.add(mcp.NewTool("org_create",
		mcp.WithDescription("Create an organization"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Organization name")),
	), s.orgCreate)
	s.add(mcp.NewTool("org_list",
		mcp.WithDescription("List organizations, oldest first"),
	), s.orgList)

	s.add(mcp.NewTool("project_create",
		mcp.WithDescription("Create a project in an organization. Names are unique per organization."),
		mcp.WithString("org_id", mcp.Required(), mcp.Description("Owning organization id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString("repo_path", mcp.Description("Repository path")),
		mcp.WithString("description", mcp.Description("Project description")),
	), s.projectCreate)
	s.add(mcp.NewTool("project_list",
		mcp.WithDescription("List projects, optionally for one organization"),
		mcp.WithString("org_id", mcp.Description("Only projects of this organization")),
	), s.projectList)
	s.add(mcp.NewTool("project_update",
		mcp.WithDescription("Change a project's name, repo path or description"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("name", mcp.Description("New name")),
		mcp.WithString("repo_path", mcp.Description("New repository path")),
		mcp.WithString("description", mcp.Description("New description")),
	), s.projectUpdate)

	s.add(mcp.NewTool("ticket_create",
		mcp.WithDescription("Create a ticket in a project"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("Owning project id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Ticket title")),
		mcp.WithString("description", mcp.Description("Ticket description")),
		enumString("status", "Initial status (default backlog)", model.TicketStatusValues()),
		enumString("priority", "Priority (default medium)", model.PriorityValues()),
		stringArray("assignees", "Assignees"),
		stringArray("tags", "Tags"),
		stringArray("related_repos", "Related repositories"),
		stringArray("acceptance_criteria", "Acceptance criteria"),
		stringArray("blockers", "Blockers"),
		mcp.WithObject("metadata", mcp.Description("Arbitrary JSON metadata")),
	), s.ticketCreate)
	s.add(mcp.NewTool("ticket_update",
		mcp.WithDescription("Update ticket fields. Omitted fields are unchanged; lists and metadata are replaced whole."),
		mcp.WithString("ticket_id", mcp.Required(), mcp.Description("Ticket id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		enumString("status", "New status", model.TicketStatusValues()),
		enumString("priority", "New priority", model.PriorityValues()),
		stringArray("assignees", "Replacement assignees"),
		stringArray("tags", "Replacement tags"),
		stringArray("related_repos", "Replacement related repositories"),
		stringArray("acceptance_criteria", "Replacement acceptance criteria"),
		stringArray("blockers", "Replacement blockers"),
		mcp.WithObject("metadata", mcp.Description("Replacement metadata; null clears")),
	), s.ticketUpdate)
	s.add(mcp.NewTool("ticket_list",
		mcp.WithDescription("List tickets, oldest first"),
		mcp.WithString("project_id", mcp.Description("Only tickets of this project")),
		enumString("status", "Only tickets with this status", model.TicketStatusValues()),
		enumString("priority", "Only tickets with this priority", model.PriorityValues()),
	), s.ticketList)
	s.add(mcp.NewTool("ticket_get",
		mcp.WithDescription("Get a ticket with its tasks"),
		mcp.WithString("ticket_id", mcp.Required(), mcp.Description("Ticket id")),
	), s.ticketGet)
	s.add(mcp.NewTool("ticket_search",
		mcp.WithDescription("Search ticket titles and descriptions"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for")),
		mcp.WithString("project_id", mcp.Description("Only tickets of this project")),
		enumString("status", "Only tickets with this status", model.TicketStatusValues()),
		enumString("priority", "Only tickets with this priority", model.PriorityValues()),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 50)")),
	), s.ticketSearch)

	s.add(mcp.NewTool("task_create",
		mcp.WithDescription("Create a task in a ticket"),
		mcp.WithString("ticket_id", mcp.Required(), mcp.Description("Owning ticket id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Task title")),
		mcp.WithString("details", mcp.Description("Task details")),
		enumString("status", "Initial status (default pending)", model.TaskStatusValues()),
		enumString("priority", "Priority (default medium)", model.PriorityValues()),
		enumString("complexity", "Complexity (default medium)", model.ComplexityValues()),
		stringArray("acceptance_criteria", "Acceptance criteria"),
		mcp.WithObject("metadata", mcp.Description("Arbitrary JSON metadata")),
	), s.taskCreate)
	s.add(mcp.NewTool("task_update",
		mcp.WithDescription("Update task fields. Omitted fields are unchanged."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("details", mcp.Description("New details")),
		enumString("status", "New status", model.TaskStatusValues()),
		enumString("priority", "New priority", model.PriorityValues()),
		enumString("complexity", "New complexity", model.ComplexityValues()),
		stringArray("acceptance_criteria", "Replacement acceptance criteria"),
		mcp.WithObject("metadata", mcp.Description("Replacement metadata; null clears")),
	), s.taskUpdate)
	s.add(mcp.NewTool("task_list",
		mcp.WithDescription("List tasks, oldest first"),
		mcp.WithString("ticket_id", mcp.Description("Only tasks of this ticket")),
		enumString("status", "Only tasks with this status", model.TaskStatusValues()),
	), s.taskList)
	s.add(mcp.NewTool("task_get",
		mcp.WithDescription("Get a task with the ids of the tasks it depends on"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
	), s.taskGet)

	s.add(mcp.NewTool("note_add",
		mcp.WithDescription("Attach a note to an org, project, ticket or task"),
		enumString("entity_type", "Kind of the target", model.NoteTargetKinds(), mcp.Required()),
		mcp.WithString("entity_id", mcp.Required(), mcp.Description("Target id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note text")),
	), s.noteAdd)
	s.add(mcp.NewTool("note_list",
		mcp.WithDescription("List notes, optionally for one target"),
		enumString("entity_type", "Kind of the target", model.NoteTargetKinds()),
		mcp.WithString("entity_id", mcp.Description("Target id")),
	), s.noteList)
	s.add(mcp.NewTool("note_get",
		mcp.WithDescription("Get a note"),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Note id")),
	), s.noteGet)

	s.add(mcp.NewTool("dep_add",
		mcp.WithDescription("Record that a task depends on another"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Dependent task")),
		mcp.WithString("depends_on_id", mcp.Required(), mcp.Description("Task it depends on")),
	), s.depAdd)
	s.add(mcp.NewTool("dep_remove",
		mcp.WithDescription("Remove a task dependency"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Dependent task")),
		mcp.WithString("depends_on_id", mcp.Required(), mcp.Description("Task it depends on")),
	), s.depRemove)

	s.add(mcp.NewTool("delete",
		mcp.WithDescription("Delete an entity and everything it owns. Deleting a missing id is not an error."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity id")),
		enumString("kind", "Entity kind; inferred from the id prefix when omitted", store.DeletableKinds()),
	), s.delete)
}

func (s *Server) orgCreate(ctx context.Context, a args) (any, error) {
	return s.store.CreateOrg(ctx, a.str("name"))
}

func (s *Server) orgList(ctx context.Context, _ args) (any, error) {
	return s.store.ListOrgs(ctx)
}

func (s *Server) projectCreate(ctx context.Context, a args) (any, error) {
	return s.store.CreateProject(ctx, store.NewProject{
		OrgID:       a.str("org_id"),
		Name:        a.str("name"),
		RepoPath:    a.str("repo_path"),
		Description: a.req.GetString("description", ""),
	})
}

func (s *Server) projectList(ctx context.Context, a args) (any, error) {
	return s.store.ListProjects(ctx, store.ProjectFilter{OrgID: a.str("org_id")})
}

func (s *Server) projectUpdate(ctx context.Context, a args) (any, error) {
	id, err := a.required("project", "project_id")
	if err != nil {
		return nil, err
	}
	return s.store.UpdateProject(ctx, id, store.ProjectPatch{
		Name:        a.strPtr("name"),
		RepoPath:    a.strPtr("repo_path"),
		Description: a.strPtr("description"),
	})
}

func (s *Server) ticketCreate(ctx context.Context, a args) (any, error) {
	meta, err := a.metadata("ticket")
	if err != nil {
		return nil, err
	}
	return s.store.CreateTicket(ctx, store.NewTicket{
		ProjectID:          a.str("project_id"),
		Title:              a.str("title"),
		Description:        a.req.GetString("description", ""),
		Status:             model.TicketStatus(a.str("status")),
		Priority:           model.Priority(a.str("priority")),
		Assignees:          a.list("assignees"),
		Tags:               a.list("tags"),
		RelatedRepos:       a.list("related_repos"),
		AcceptanceCriteria: a.list("acceptance_criteria"),
		Blockers:           a.list("blockers"),
		Metadata:           meta,
	})
}

func (s *Server) ticketUpdate(ctx context.Context, a args) (any, error) {
	id, err := a.required("ticket", "ticket_id")
	if err != nil {
		return nil, err
	}
	patch := store.TicketPatch{
		Title:              a.strPtr("title"),
		Description:        a.strPtr("description"),
		Assignees:          a.listPtr("assignees"),
		Tags:               a.listPtr("tags"),
		RelatedRepos:       a.listPtr("related_repos"),
		AcceptanceCriteria: a.listPtr("acceptance_criteria"),
		Blockers:           a.listPtr("blockers"),
	}
	if a.has("status") {
		st := model.TicketStatus(a.str("status"))
		patch.Status = &st
	}
	if a.has("priority") {
		p := model.Priority(a.str("priority"))
		patch.Priority = &p
	}
	if patch.Metadata, err = a.metadataPtr("ticket"); err != nil {
		return nil, err
	}
	return s.store.UpdateTicket(ctx, id, patch)
}

func ticketFilter(a args) store.TicketFilter {
	return store.TicketFilter{
		ProjectID: a.str("project_id"),
		Status:    model.TicketStatus(a.str("status")),
		Priority:  model.Priority(a.str("priority")),
	}
}

func (s *Server) ticketList(ctx context.Context, a args) (any, error) {
	return s.store.ListTickets(ctx, ticketFilter(a))
}

func (s *Server) ticketGet(ctx context.Context, a args) (any, error) {
	id, err := a.required("ticket", "ticket_id")
	if err != nil {
		return nil, err
	}
	return s.store.GetTicketWithTasks(ctx, id)
}

func (s *Server) ticketSearch(ctx context.Context, a args) (any, error) {
	query, err := a.required("ticket", "query")
	if err != nil {
		return nil, err
	}
	return s.store.SearchTickets(ctx, query, ticketFilter(a), a.int("limit", store.DefaultSearchLimit))
}

func (s *Server) taskCreate(ctx context.Context, a args) (any, error) {
	meta, err := a.metadata("task")
	if err != nil {
		return nil, err
	}
	return s.store.CreateTask(ctx, store.NewTask{
		TicketID:           a.str("ticket_id"),
		Title:              a.str("title"),
		Details:            a.req.GetString("details", ""),
		Status:             model.TaskStatus(a.str("status")),
		Priority:           model.Priority(a.str("priority")),
		Complexity:         model.Complexity(a.str("complexity")),
		AcceptanceCriteria: a.list("acceptance_criteria"),
		Metadata:           meta,
	})
}

func (s *Server) taskUpdate(ctx context.Context, a args) (any, error) {
	id, err := a.required("task", "task_id")
	if err != nil {
		return nil, err
	}
	patch := store.TaskPatch{
		Title:              a.strPtr("title"),
		Details:            a.strPtr("details"),
		AcceptanceCriteria: a.listPtr("acceptance_criteria"),
	}
	if a.has("status") {
		st := model.TaskStatus(a.str("status"))
		patch.Status = &st
	}
	if a.has("priority") {
		p := model.Priority(a.str("priority"))
		patch.Priority = &p
	}
	if a.has("complexity") {
		c := model.Complexity(a.str("complexity"))
		patch.Complexity = &c
	}
	if patch.Metadata, err = a.metadataPtr("task"); err != nil {
		return nil, err
	}
	return s.store.UpdateTask(ctx, id, patch)
}

func (s *Server) taskList(ctx context.Context, a args) (any, error) {
	return s.store.ListTasks(ctx, store.TaskFilter{
		TicketID: a.str("ticket_id"),
		Status:   model.TaskStatus(a.str("status")),
	})
}

// taskWithDeps is a task plus the ids it depends on.
type taskWithDeps struct {
	*model.Task
	DependsOn []string `json:"depends_on"`
}

func (s *Server) taskGet(ctx context.Context, a args) (any, error) {
	id, err := a.required("task", "task_id")
	if err != nil {
		return nil, err
	}
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	deps, err := s.store.ListDependencies(ctx, id)
	if err != nil {
		return nil, err
	}
	if deps == nil {
		deps = []string{}
	}
	return taskWithDeps{Task: t, DependsOn: deps}, nil
}

func noteTarget(a args, required bool) (model.NoteTarget, error) {
	kindName, id := a.str("entity_type"), a.str("entity_id")
	if !required && kindName == "" && id == "" {
		return model.NoteTarget{}, nil
	}
	kind, err := model.ParseNoteTargetKind(kindName)
	if err != nil {
		return model.NoteTarget{}, err
	}
	if id == "" {
		return model.NoteTarget{}, errors.Required("note", "entity_id")
	}
	return model.NoteTarget{Kind: kind, ID: id}, nil
}

func (s *Server) noteAdd(ctx context.Context, a args) (any, error) {
	target, err := noteTarget(a, true)
	if err != nil {
		return nil, err
	}
	return s.store.AddNote(ctx, target, a.req.GetString("content", ""))
}

func (s *Server) noteList(ctx context.Context, a args) (any, error) {
	target, err := noteTarget(a, false)
	if err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, target)
}

func (s *Server) noteGet(ctx context.Context, a args) (any, error) {
	id, err := a.required("note", "note_id")
	if err != nil {
		return nil, err
	}
	return s.store.GetNote(ctx, id)
}

// edgeResult reports a dependency change.
type edgeResult struct {
	TaskID      string `json:"task_id"`
	DependsOnID string `json:"depends_on_id"`
	Changed     bool   `json:"changed"`
}

func (s *Server) depAdd(ctx context.Context, a args) (any, error) {
	taskID, dependsOn := a.str("task_id"), a.str("depends_on_id")
	if err := s.store.AddDependency(ctx, taskID, dependsOn); err != nil {
		return nil, err
	}
	return edgeResult{TaskID: taskID, DependsOnID: dependsOn, Changed: true}, nil
}

func (s *Server) depRemove(ctx context.Context, a args) (any, error) {
	taskID, dependsOn := a.str("task_id"), a.str("depends_on_id")
	removed, err := s.store.RemoveDependency(ctx, taskID, dependsOn)
	if err != nil {
		return nil, err
	}
	return edgeResult{TaskID: taskID, DependsOnID: dependsOn, Changed: removed}, nil
}

// deleteResult reports a delete. Deleted is false when the id was unknown.
type deleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

func (s *Server) delete(ctx context.Context, a args) (any, error) {
	id, err := a.required("entity", "id")
	if err != nil {
		return nil, err
	}
	existed, err := s.store.Delete(ctx, model.EntityKind(a.str("kind")), id)
	if err != nil {
		return nil, err
	}
	return deleteResult{ID: id, Deleted: existed}, nil
}
