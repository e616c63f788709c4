// Package model defines the tracker's domain types: the org, project,
// ticket, task and note hierarchy plus task dependencies.
package model

import (
	"strings"
	"time"

	"github.com/randalmurphal/tpm/internal/errors"
)

// Org is the root of the hierarchy.
type Org struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Project belongs to an org. Names are unique within an org.
type Project struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	RepoPath    string    `json:"repo_path,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ticket is a unit of work within a project.
type Ticket struct {
	ID                 string       `json:"id"`
	ProjectID          string       `json:"project_id"`
	Title              string       `json:"title"`
	Description        string       `json:"description,omitempty"`
	Status             TicketStatus `json:"status"`
	Priority           Priority     `json:"priority"`
	CreatedAt          time.Time    `json:"created_at"`
	StartedAt          *time.Time   `json:"started_at,omitempty"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
	Assignees          []string     `json:"assignees,omitempty"`
	Tags               []string     `json:"tags,omitempty"`
	RelatedRepos       []string     `json:"related_repos,omitempty"`
	AcceptanceCriteria []string     `json:"acceptance_criteria,omitempty"`
	Blockers           []string     `json:"blockers,omitempty"`
	Metadata           Metadata     `json:"metadata,omitempty"`
}

// Task is a step within a ticket.
type Task struct {
	ID                 string     `json:"id"`
	TicketID           string     `json:"ticket_id"`
	Title              string     `json:"title"`
	Details            string     `json:"details,omitempty"`
	Status             TaskStatus `json:"status"`
	Priority           Priority   `json:"priority"`
	Complexity         Complexity `json:"complexity"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	AcceptanceCriteria []string   `json:"acceptance_criteria,omitempty"`
	Metadata           Metadata   `json:"metadata,omitempty"`
}

// Note is free text attached to any entity other than a note.
type Note struct {
	ID         string     `json:"id"`
	EntityType EntityKind `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Target returns the entity the note is attached to.
func (n *Note) Target() NoteTarget {
	return NoteTarget{Kind: n.EntityType, ID: n.EntityID}
}

// Dependency records that TaskID cannot finish before DependsOnID.
type Dependency struct {
	TaskID      string `json:"task_id"`
	DependsOnID string `json:"depends_on_id"`
}

// NoteTarget identifies the entity a note is attached to.
type NoteTarget struct {
	Kind EntityKind
	ID   string
}

// Validate checks the kind is a legal note target and the id is set.
func (t NoteTarget) Validate() error {
	if !t.Kind.IsNoteTarget() {
		return errors.InvalidEnum("note", "entity_type", string(t.Kind), NoteTargetKinds())
	}
	if blank(t.ID) {
		return errors.Required("note", "entity_id")
	}
	return nil
}

func (t NoteTarget) String() string {
	return string(t.Kind) + " " + t.ID
}

// Validate checks an org's own fields.
func (o *Org) Validate() error {
	if blank(o.Name) {
		return errors.Required("org", "name")
	}
	return nil
}

// Validate checks a project's own fields.
func (p *Project) Validate() error {
	if blank(p.OrgID) {
		return errors.Required("project", "org_id")
	}
	if blank(p.Name) {
		return errors.Required("project", "name")
	}
	return nil
}

// Validate checks a ticket's own fields.
func (t *Ticket) Validate() error {
	if blank(t.ProjectID) {
		return errors.Required("ticket", "project_id")
	}
	if blank(t.Title) {
		return errors.Required("ticket", "title")
	}
	if !t.Status.Valid() {
		return errors.InvalidEnum("ticket", "status", string(t.Status), TicketStatusValues())
	}
	if !t.Priority.Valid() {
		return errors.InvalidEnum("ticket", "priority", string(t.Priority), PriorityValues())
	}
	if err := t.Metadata.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks a task's own fields.
func (t *Task) Validate() error {
	if blank(t.TicketID) {
		return errors.Required("task", "ticket_id")
	}
	if blank(t.Title) {
		return errors.Required("task", "title")
	}
	if !t.Status.Valid() {
		return errors.InvalidEnum("task", "status", string(t.Status), TaskStatusValues())
	}
	if !t.Priority.Valid() {
		return errors.InvalidEnum("task", "priority", string(t.Priority), PriorityValues())
	}
	if !t.Complexity.Valid() {
		return errors.InvalidEnum("task", "complexity", string(t.Complexity), ComplexityValues())
	}
	if err := t.Metadata.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks a note's own fields.
func (n *Note) Validate() error {
	if err := n.Target().Validate(); err != nil {
		return err
	}
	if blank(n.Content) {
		return errors.Required("note", "content")
	}
	return nil
}

// Validate rejects empty endpoints and self edges.
func (d Dependency) Validate() error {
	if blank(d.TaskID) {
		return errors.Required("dependency", "task_id")
	}
	if blank(d.DependsOnID) {
		return errors.Required("dependency", "depends_on_id")
	}
	if d.TaskID == d.DependsOnID {
		return errors.Invalid("dependency", "depends_on_id", "a task cannot depend on itself")
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
