package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/randalmurphal/tpm/internal/db"
	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
)

const noteColumns = `id, entity_type, entity_id, content, created_at`

// tableFor maps a note target kind to the table holding it.
func tableFor(kind model.EntityKind) string {
	switch kind {
	case model.KindOrg:
		return "orgs"
	case model.KindProject:
		return "projects"
	case model.KindTicket:
		return "tickets"
	case model.KindTask:
		return "tasks"
	}
	return ""
}

// AddNote attaches a note to an existing org, project, ticket or task.
func (s *Store) AddNote(ctx context.Context, target model.NoteTarget, content string) (*model.Note, error) {
	n := &model.Note{
		ID:         s.newID(model.KindNote),
		EntityType: target.Kind,
		EntityID:   target.ID,
		Content:    content,
		CreatedAt:  s.timestamp(),
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		if err := requireNoteTarget(tx, target); err != nil {
			return err
		}
		return insertNote(tx, n)
	})
	if err != nil {
		return nil, err
	}

	s.logMutation(ctx, "added note", model.KindNote, n.ID, "target", target.String())
	return n, nil
}

// GetNote returns a note by id.
func (s *Store) GetNote(ctx context.Context, id string) (*model.Note, error) {
	var n *model.Note
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		n, err = getNote(tx, id)
		return err
	})
	return n, err
}

// ListNotes returns the notes attached to target, oldest first. A zero
// target lists every note.
func (s *Store) ListNotes(ctx context.Context, target model.NoteTarget) ([]model.Note, error) {
	if target != (model.NoteTarget{}) {
		if err := target.Validate(); err != nil {
			return nil, err
		}
	}
	var notes []model.Note
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		notes, err = listNotes(tx, target)
		return err
	})
	return notes, err
}

// DeleteNote removes a single note. Reports whether it existed.
func (s *Store) DeleteNote(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		res, err := tx.Exec("DELETE FROM notes WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		existed = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if existed {
		s.logMutation(ctx, "deleted note", model.KindNote, id)
	}
	return existed, nil
}

// requireNoteTarget returns a NotFoundError unless the target exists.
func requireNoteTarget(tx *db.TxOps, target model.NoteTarget) error {
	table := tableFor(target.Kind)
	if table == "" {
		return errors.InvalidEnum("note", "entity_type", string(target.Kind), model.NoteTargetKinds())
	}
	return requireParent(tx, target.Kind, table, target.ID)
}

func insertNote(tx *db.TxOps, n *model.Note) error {
	_, err := tx.Exec(`INSERT INTO notes (`+noteColumns+`) VALUES (?, ?, ?, ?, ?)`,
		n.ID, string(n.EntityType), n.EntityID, n.Content, db.FormatTime(n.CreatedAt))
	if err != nil {
		return constraintError("insert", model.KindNote, n.ID, err)
	}
	return nil
}

func getNote(tx *db.TxOps, id string) (*model.Note, error) {
	n, err := scanNote(tx.QueryRow(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("note", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

func listNotes(tx *db.TxOps, target model.NoteTarget) ([]model.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes`
	var args []any
	if target.Kind != "" {
		query += ` WHERE entity_type = ? AND entity_id = ?`
		args = append(args, string(target.Kind), target.ID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var notes []model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func scanNote(row rowScanner) (*model.Note, error) {
	var n model.Note
	var entityType, createdAt string
	if err := row.Scan(&n.ID, &entityType, &n.EntityID, &n.Content, &createdAt); err != nil {
		return nil, err
	}
	t, err := db.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	n.EntityType = model.EntityKind(entityType)
	n.CreatedAt = t
	return &n, nil
}
