// Package roadmap rolls the tracker hierarchy up into completion statistics.
//
// Build reads one store snapshot and produces a tree of
// org -> project -> ticket -> task nodes. Every non-leaf node carries
// done/total/percent counts; the renderers in this package only project
// that tree and never query the store.
package roadmap

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

// Source is the read side of the entity store.
type Source interface {
	Snapshot(ctx context.Context, fn func(*store.Snapshot) error) error
}

// Scope limits a roadmap to one org or one project. The zero value covers
// everything.
type Scope struct {
	OrgID     string `json:"org_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// Completion counts finished items out of a total.
type Completion struct {
	Done    int `json:"done"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// NewCompletion computes the rounded percentage for done out of total.
func NewCompletion(done, total int) Completion {
	return Completion{Done: done, Total: total, Percent: Percent(done, total)}
}

func (c Completion) add(o Completion) Completion {
	return NewCompletion(c.Done+o.Done, c.Total+o.Total)
}

// Percent returns 100*done/total rounded half up, or 0 when total is 0.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*done + total) / (2 * total)
}

// Roadmap is the root of the rollup tree.
type Roadmap struct {
	Scope            Scope      `json:"scope"`
	GeneratedAt      time.Time  `json:"generated_at"`
	Orgs             []OrgNode  `json:"orgs"`
	TicketCompletion Completion `json:"ticket_completion"`
	TaskCompletion   Completion `json:"task_completion"`
}

// OrgNode summarizes one org.
type OrgNode struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Projects         []ProjectNode `json:"projects"`
	TicketCompletion Completion    `json:"ticket_completion"`
	TaskCompletion   Completion    `json:"task_completion"`
}

// ProjectNode summarizes one project.
type ProjectNode struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	Tickets          []TicketNode `json:"tickets"`
	TicketCompletion Completion   `json:"ticket_completion"`
	TaskCompletion   Completion   `json:"task_completion"`
}

// TicketNode summarizes one ticket and lists its tasks.
type TicketNode struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Status         model.TicketStatus `json:"status"`
	Priority       model.Priority     `json:"priority"`
	Tags           []string           `json:"tags,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	Tasks          []TaskNode         `json:"tasks"`
	TaskCompletion Completion         `json:"task_completion"`
}

// TaskNode is a leaf.
type TaskNode struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Status     model.TaskStatus `json:"status"`
	Priority   model.Priority   `json:"priority"`
	Complexity model.Complexity `json:"complexity"`
	CreatedAt  time.Time        `json:"created_at"`
}

type contents struct {
	orgs     []model.Org
	projects []model.Project
	tickets  []model.Ticket
	tasks    []model.Task
}

// Build reads the store once and assembles the rollup for scope.
func Build(ctx context.Context, src Source, scope Scope) (*Roadmap, error) {
	var c contents
	err := src.Snapshot(ctx, func(sn *store.Snapshot) error {
		var err error
		if c.orgs, err = sn.Orgs(); err != nil {
			return err
		}
		if c.projects, err = sn.Projects(); err != nil {
			return err
		}
		if c.tickets, err = sn.Tickets(); err != nil {
			return err
		}
		c.tasks, err = sn.Tasks()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read roadmap snapshot: %w", err)
	}

	if err := checkScope(c, scope); err != nil {
		return nil, err
	}
	return assemble(c, scope), nil
}

func checkScope(c contents, scope Scope) error {
	if scope.OrgID != "" && !containsID(len(c.orgs), func(i int) string { return c.orgs[i].ID }, scope.OrgID) {
		return errors.NotFound("org", scope.OrgID)
	}
	if scope.ProjectID == "" {
		return nil
	}
	for _, p := range c.projects {
		if p.ID != scope.ProjectID {
			continue
		}
		if scope.OrgID != "" && p.OrgID != scope.OrgID {
			return errors.Invalid("roadmap", "project_id",
				fmt.Sprintf("project %s belongs to org %s, not %s", p.ID, p.OrgID, scope.OrgID))
		}
		return nil
	}
	return errors.NotFound("project", scope.ProjectID)
}

func containsID(n int, id func(int) string, want string) bool {
	for i := 0; i < n; i++ {
		if id(i) == want {
			return true
		}
	}
	return false
}

// assemble groups the snapshot lists, which arrive ordered by created_at
// then id, into the tree in a single pass over each list.
func assemble(c contents, scope Scope) *Roadmap {
	tasksByTicket := make(map[string][]TaskNode)
	for _, t := range c.tasks {
		tasksByTicket[t.TicketID] = append(tasksByTicket[t.TicketID], TaskNode{
			ID:         t.ID,
			Title:      t.Title,
			Status:     t.Status,
			Priority:   t.Priority,
			Complexity: t.Complexity,
			CreatedAt:  t.CreatedAt,
		})
	}

	ticketsByProject := make(map[string][]TicketNode)
	for _, t := range c.tickets {
		tasks := tasksByTicket[t.ID]
		done := 0
		for _, task := range tasks {
			if task.Status == model.TaskDone {
				done++
			}
		}
		ticketsByProject[t.ProjectID] = append(ticketsByProject[t.ProjectID], TicketNode{
			ID:             t.ID,
			Title:          t.Title,
			Status:         t.Status,
			Priority:       t.Priority,
			Tags:           t.Tags,
			CreatedAt:      t.CreatedAt,
			Tasks:          nonNil(tasks),
			TaskCompletion: NewCompletion(done, len(tasks)),
		})
	}

	projectsByOrg := make(map[string][]ProjectNode)
	for _, p := range c.projects {
		if scope.ProjectID != "" && p.ID != scope.ProjectID {
			continue
		}
		tickets := ticketsByProject[p.ID]
		// Stable sort keeps created_at, id order within a priority.
		sort.SliceStable(tickets, func(i, j int) bool {
			return tickets[i].Priority.Rank() > tickets[j].Priority.Rank()
		})

		node := ProjectNode{ID: p.ID, Name: p.Name, Description: p.Description, Tickets: nonNil(tickets)}
		done := 0
		for _, t := range tickets {
			if t.Status == model.TicketDone {
				done++
			}
			node.TaskCompletion = node.TaskCompletion.add(t.TaskCompletion)
		}
		node.TicketCompletion = NewCompletion(done, len(tickets))
		projectsByOrg[p.OrgID] = append(projectsByOrg[p.OrgID], node)
	}

	r := &Roadmap{Scope: scope, GeneratedAt: time.Now().UTC(), Orgs: []OrgNode{}}
	for _, o := range c.orgs {
		if scope.OrgID != "" && o.ID != scope.OrgID {
			continue
		}
		projects := projectsByOrg[o.ID]
		if scope.ProjectID != "" && len(projects) == 0 {
			continue
		}
		node := OrgNode{ID: o.ID, Name: o.Name, Projects: nonNil(projects)}
		for _, p := range projects {
			node.TicketCompletion = node.TicketCompletion.add(p.TicketCompletion)
			node.TaskCompletion = node.TaskCompletion.add(p.TaskCompletion)
		}
		r.TicketCompletion = r.TicketCompletion.add(node.TicketCompletion)
		r.TaskCompletion = r.TaskCompletion.add(node.TaskCompletion)
		r.Orgs = append(r.Orgs, node)
	}
	return r
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
