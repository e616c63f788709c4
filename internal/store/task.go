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

const taskColumns = `id, ticket_id, title, details, status, priority, complexity, created_at,
	completed_at, acceptance_criteria, metadata`

// NewTask holds the fields for CreateTask. Empty Status, Priority and
// Complexity default to pending, medium and medium.
type NewTask struct {
	TicketID           string
	Title              string
	Details            string
	Status             model.TaskStatus
	Priority           model.Priority
	Complexity         model.Complexity
	AcceptanceCriteria []string
	Metadata           model.Metadata
}

// TaskPatch lists the task fields to change. Nil fields are untouched.
type TaskPatch struct {
	Title              *string
	Details            *string
	Status             *model.TaskStatus
	Priority           *model.Priority
	Complexity         *model.Complexity
	AcceptanceCriteria *[]string
	Metadata           *model.Metadata
}

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	TicketID string
	Status   model.TaskStatus
}

// CreateTask creates a task under an existing ticket.
func (s *Store) CreateTask(ctx context.Context, in NewTask) (*model.Task, error) {
	now := s.timestamp()
	t := &model.Task{
		ID:                 s.newID(model.KindTask),
		TicketID:           in.TicketID,
		Title:              in.Title,
		Details:            in.Details,
		Status:             in.Status,
		Priority:           in.Priority,
		Complexity:         in.Complexity,
		CreatedAt:          now,
		AcceptanceCriteria: normList(in.AcceptanceCriteria),
		Metadata:           in.Metadata.Normalize(),
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.Complexity == "" {
		t.Complexity = model.ComplexityMedium
	}
	stampTask(t, now)
	if err := t.Validate(); err != nil {
		return nil, err
	}

	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		if err := requireParent(tx, model.KindTicket, "tickets", t.TicketID); err != nil {
			return err
		}
		return insertTask(tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.logMutation(ctx, "created task", model.KindTask, t.ID, "ticket_id", t.TicketID, "status", string(t.Status))
	return t, nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var t *model.Task
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		t, err = getTask(tx, id)
		return err
	})
	return t, err
}

// ListTasks returns tasks matching filter, oldest first.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.InvalidEnum("task", "status", string(filter.Status), model.TaskStatusValues())
	}
	var tasks []model.Task
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		tasks, err = listTasks(tx, filter)
		return err
	})
	return tasks, err
}

// UpdateTask applies patch to a task and returns the updated row.
// Moving into done stamps completed_at the first time only.
func (s *Store) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*model.Task, error) {
	var t *model.Task
	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		var err error
		t, err = getTask(tx, id)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Details != nil {
			t.Details = *patch.Details
		}
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		if patch.Complexity != nil {
			t.Complexity = *patch.Complexity
		}
		if patch.AcceptanceCriteria != nil {
			t.AcceptanceCriteria = normList(*patch.AcceptanceCriteria)
		}
		if patch.Metadata != nil {
			t.Metadata = patch.Metadata.Normalize()
		}
		stampTask(t, s.timestamp())
		if err := t.Validate(); err != nil {
			return err
		}
		return updateTask(tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.logMutation(ctx, "updated task", model.KindTask, id, "status", string(t.Status))
	return t, nil
}

// DeleteTask removes a task, its notes and any dependency edges touching it.
// Reports whether the task existed.
func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		ok, err := exists(tx, "tasks", id)
		if err != nil || !ok {
			return err
		}
		existed = true
		if _, err := tx.Exec(`DELETE FROM notes WHERE entity_type = 'task' AND entity_id = ?`, id); err != nil {
			return fmt.Errorf("delete task notes: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if existed {
		s.logMutation(ctx, "deleted task", model.KindTask, id)
	}
	return existed, nil
}

func stampTask(t *model.Task, now time.Time) {
	if t.Status == model.TaskDone && t.CompletedAt == nil {
		t.CompletedAt = &now
	}
}

func taskArgs(t *model.Task) ([]any, error) {
	criteria, err := encodeList(t.AcceptanceCriteria)
	if err != nil {
		return nil, err
	}
	return []any{
		t.ID, t.TicketID, t.Title, nullString(t.Details), string(t.Status), string(t.Priority),
		string(t.Complexity), db.FormatTime(t.CreatedAt), db.FormatNullTime(t.CompletedAt),
		criteria, encodeMetadata(t.Metadata),
	}, nil
}

func insertTask(tx *db.TxOps, t *model.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return constraintError("insert", model.KindTask, t.ID, err)
	}
	return nil
}

func updateTask(tx *db.TxOps, t *model.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	args = append(args[1:], args[0])
	_, err = tx.Exec(`UPDATE tasks SET ticket_id = ?, title = ?, details = ?, status = ?, priority = ?,
		complexity = ?, created_at = ?, completed_at = ?, acceptance_criteria = ?, metadata = ?
		WHERE id = ?`, args...)
	if err != nil {
		return constraintError("update", model.KindTask, t.ID, err)
	}
	return nil
}

func getTask(tx *db.TxOps, id string) (*model.Task, error) {
	t, err := scanTask(tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func listTasks(tx *db.TxOps, filter TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var conds []string
	var args []any
	if filter.TicketID != "" {
		conds = append(conds, "ticket_id = ?")
		args = append(args, filter.TicketID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var status, priority, complexity, createdAt string
	var details, completedAt, criteria, metadata sql.NullString
	if err := row.Scan(&t.ID, &t.TicketID, &t.Title, &details, &status, &priority, &complexity,
		&createdAt, &completedAt, &criteria, &metadata); err != nil {
		return nil, err
	}

	t.Details = details.String
	t.Status = model.TaskStatus(status)
	t.Priority = model.Priority(priority)
	t.Complexity = model.Complexity(complexity)
	t.Metadata = decodeMetadata(metadata)

	var err error
	if t.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = db.ParseNullTime(completedAt); err != nil {
		return nil, err
	}
	if t.AcceptanceCriteria, err = decodeList(criteria); err != nil {
		return nil, err
	}
	return &t, nil
}
