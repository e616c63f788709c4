package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/tpm/internal/db"
	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
)

const ticketColumns = `id, project_id, title, description, status, priority, created_at, started_at,
	completed_at, assignees, tags, related_repos, acceptance_criteria, blockers, metadata`

// DefaultSearchLimit caps SearchTickets when no limit is given.
const DefaultSearchLimit = 50

// NewTicket holds the fields for CreateTicket. Empty Status and Priority
// default to backlog and medium.
type NewTicket struct {
	ProjectID          string
	Title              string
	Description        string
	Status             model.TicketStatus
	Priority           model.Priority
	Assignees          []string
	Tags               []string
	RelatedRepos       []string
	AcceptanceCriteria []string
	Blockers           []string
	Metadata           model.Metadata
}

// TicketPatch lists the ticket fields to change. Nil fields are untouched;
// a non-nil list or metadata replaces the stored value wholesale.
type TicketPatch struct {
	Title              *string
	Description        *string
	Status             *model.TicketStatus
	Priority           *model.Priority
	Assignees          *[]string
	Tags               *[]string
	RelatedRepos       *[]string
	AcceptanceCriteria *[]string
	Blockers           *[]string
	Metadata           *model.Metadata
}

// TicketFilter narrows ListTickets and SearchTickets.
type TicketFilter struct {
	ProjectID string
	Status    model.TicketStatus
	Priority  model.Priority
}

func (f TicketFilter) validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return errors.InvalidEnum("ticket", "status", string(f.Status), model.TicketStatusValues())
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return errors.InvalidEnum("ticket", "priority", string(f.Priority), model.PriorityValues())
	}
	return nil
}

// TicketWithTasks is a ticket together with its tasks, oldest first.
type TicketWithTasks struct {
	*model.Ticket
	Tasks []model.Task `json:"tasks"`
}

// CreateTicket creates a ticket under an existing project.
func (s *Store) CreateTicket(ctx context.Context, in NewTicket) (*model.Ticket, error) {
	now := s.timestamp()
	t := &model.Ticket{
		ID:                 s.newID(model.KindTicket),
		ProjectID:          in.ProjectID,
		Title:              in.Title,
		Description:        in.Description,
		Status:             in.Status,
		Priority:           in.Priority,
		CreatedAt:          now,
		Assignees:          normList(in.Assignees),
		Tags:               normList(in.Tags),
		RelatedRepos:       normList(in.RelatedRepos),
		AcceptanceCriteria: normList(in.AcceptanceCriteria),
		Blockers:           normList(in.Blockers),
		Metadata:           in.Metadata.Normalize(),
	}
	if t.Status == "" {
		t.Status = model.TicketBacklog
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	stampTicket(t, now)
	if err := t.Validate(); err != nil {
		return nil, err
	}

	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		if err := requireParent(tx, model.KindProject, "projects", t.ProjectID); err != nil {
			return err
		}
		return insertTicket(tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.logMutation(ctx, "created ticket", model.KindTicket, t.ID, "project_id", t.ProjectID, "status", string(t.Status))
	return t, nil
}

// GetTicket returns a ticket by id.
func (s *Store) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	var t *model.Ticket
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		t, err = getTicket(tx, id)
		return err
	})
	return t, err
}

// GetTicketWithTasks returns a ticket and its tasks from one snapshot.
func (s *Store) GetTicketWithTasks(ctx context.Context, id string) (*TicketWithTasks, error) {
	var out *TicketWithTasks
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		t, err := getTicket(tx, id)
		if err != nil {
			return err
		}
		tasks, err := listTasks(tx, TaskFilter{TicketID: id})
		if err != nil {
			return err
		}
		out = &TicketWithTasks{Ticket: t, Tasks: tasks}
		return nil
	})
	return out, err
}

// ListTickets returns tickets matching filter, oldest first.
func (s *Store) ListTickets(ctx context.Context, filter TicketFilter) ([]model.Ticket, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	var tickets []model.Ticket
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		tickets, err = listTickets(tx, filter, "", 0)
		return err
	})
	return tickets, err
}

// SearchTickets returns tickets whose title or description contains query,
// ignoring case. limit <= 0 uses DefaultSearchLimit.
func (s *Store) SearchTickets(ctx context.Context, query string, filter TicketFilter, limit int) ([]model.Ticket, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.Required("search", "query")
	}
	if err := filter.validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var tickets []model.Ticket
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		tickets, err = listTickets(tx, filter, query, limit)
		return err
	})
	return tickets, err
}

// UpdateTicket applies patch to a ticket and returns the updated row.
// Moving into in-progress or done stamps started_at or completed_at the
// first time only.
func (s *Store) UpdateTicket(ctx context.Context, id string, patch TicketPatch) (*model.Ticket, error) {
	var t *model.Ticket
	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		var err error
		t, err = getTicket(tx, id)
		if err != nil {
			return err
		}
		applyTicketPatch(t, patch)
		stampTicket(t, s.timestamp())
		if err := t.Validate(); err != nil {
			return err
		}
		return updateTicket(tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.logMutation(ctx, "updated ticket", model.KindTicket, id, "status", string(t.Status))
	return t, nil
}

// DeleteTicket removes a ticket with its tasks and their notes.
// Reports whether the ticket existed.
func (s *Store) DeleteTicket(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		ok, err := exists(tx, "tickets", id)
		if err != nil || !ok {
			return err
		}
		existed = true
		if _, err := tx.Exec(`
			DELETE FROM notes WHERE
				(entity_type = 'ticket' AND entity_id = ?)
				OR (entity_type = 'task' AND entity_id IN (SELECT id FROM tasks WHERE ticket_id = ?))
		`, id, id); err != nil {
			return fmt.Errorf("delete ticket notes: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM tickets WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete ticket: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if existed {
		s.logMutation(ctx, "deleted ticket", model.KindTicket, id)
	}
	return existed, nil
}

func applyTicketPatch(t *model.Ticket, p TicketPatch) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Assignees != nil {
		t.Assignees = normList(*p.Assignees)
	}
	if p.Tags != nil {
		t.Tags = normList(*p.Tags)
	}
	if p.RelatedRepos != nil {
		t.RelatedRepos = normList(*p.RelatedRepos)
	}
	if p.AcceptanceCriteria != nil {
		t.AcceptanceCriteria = normList(*p.AcceptanceCriteria)
	}
	if p.Blockers != nil {
		t.Blockers = normList(*p.Blockers)
	}
	if p.Metadata != nil {
		t.Metadata = p.Metadata.Normalize()
	}
}

// stampTicket sets started_at/completed_at on the first transition into
// in-progress/done. Existing stamps are never overwritten or cleared.
func stampTicket(t *model.Ticket, now time.Time) {
	switch t.Status {
	case model.TicketInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case model.TicketDone:
		if t.CompletedAt == nil {
			t.CompletedAt = &now
		}
	}
}

func ticketArgs(t *model.Ticket) ([]any, error) {
	lists := [][]string{t.Assignees, t.Tags, t.RelatedRepos, t.AcceptanceCriteria, t.Blockers}
	encoded := make([]any, len(lists))
	for i, l := range lists {
		v, err := encodeList(l)
		if err != nil {
			return nil, err
		}
		encoded[i] = v
	}
	return append([]any{
		t.ID, t.ProjectID, t.Title, nullString(t.Description), string(t.Status), string(t.Priority),
		db.FormatTime(t.CreatedAt), db.FormatNullTime(t.StartedAt), db.FormatNullTime(t.CompletedAt),
	}, append(encoded, encodeMetadata(t.Metadata))...), nil
}

func insertTicket(tx *db.TxOps, t *model.Ticket) error {
	args, err := ticketArgs(t)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return constraintError("insert", model.KindTicket, t.ID, err)
	}
	return nil
}

func updateTicket(tx *db.TxOps, t *model.Ticket) error {
	args, err := ticketArgs(t)
	if err != nil {
		return err
	}
	// Rotate the id to the end for the WHERE clause.
	args = append(args[1:], args[0])
	_, err = tx.Exec(`UPDATE tickets SET project_id = ?, title = ?, description = ?, status = ?,
		priority = ?, created_at = ?, started_at = ?, completed_at = ?, assignees = ?, tags = ?,
		related_repos = ?, acceptance_criteria = ?, blockers = ?, metadata = ?
		WHERE id = ?`, args...)
	if err != nil {
		return constraintError("update", model.KindTicket, t.ID, err)
	}
	return nil
}

func getTicket(tx *db.TxOps, id string) (*model.Ticket, error) {
	t, err := scanTicket(tx.QueryRow(`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("ticket", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

// listTickets lists tickets matching filter. A non-empty search restricts
// to case-insensitive title/description matches; limit > 0 caps the result.
func listTickets(tx *db.TxOps, filter TicketFilter, search string, limit int) ([]model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	var conds []string
	var args []any
	if filter.ProjectID != "" {
		conds = append(conds, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		conds = append(conds, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanTicket(row rowScanner) (*model.Ticket, error) {
	var t model.Ticket
	var status, priority, createdAt string
	var description, startedAt, completedAt sql.NullString
	var assignees, tags, relatedRepos, criteria, blockers, metadata sql.NullString
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &description, &status, &priority,
		&createdAt, &startedAt, &completedAt, &assignees, &tags, &relatedRepos, &criteria,
		&blockers, &metadata); err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Status = model.TicketStatus(status)
	t.Priority = model.Priority(priority)
	t.Metadata = decodeMetadata(metadata)

	var err error
	if t.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if t.StartedAt, err = db.ParseNullTime(startedAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = db.ParseNullTime(completedAt); err != nil {
		return nil, err
	}

	lists := []struct {
		src  sql.NullString
		dest *[]string
	}{
		{assignees, &t.Assignees},
		{tags, &t.Tags},
		{relatedRepos, &t.RelatedRepos},
		{criteria, &t.AcceptanceCriteria},
		{blockers, &t.Blockers},
	}
	for _, l := range lists {
		if *l.dest, err = decodeList(l.src); err != nil {
			return nil, err
		}
	}
	return &t, nil
}
