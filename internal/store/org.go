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

const orgColumns = `id, name, created_at`

// CreateOrg creates an org.
func (s *Store) CreateOrg(ctx context.Context, name string) (*model.Org, error) {
	org := &model.Org{
		ID:        s.newID(model.KindOrg),
		Name:      name,
		CreatedAt: s.timestamp(),
	}
	if err := org.Validate(); err != nil {
		return nil, err
	}

	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		return insertOrg(tx, org)
	})
	if err != nil {
		return nil, err
	}

	s.logMutation(ctx, "created org", model.KindOrg, org.ID, "name", org.Name)
	return org, nil
}

// GetOrg returns an org by id.
func (s *Store) GetOrg(ctx context.Context, id string) (*model.Org, error) {
	var org *model.Org
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		org, err = getOrg(tx, id)
		return err
	})
	return org, err
}

// ListOrgs returns every org, oldest first.
func (s *Store) ListOrgs(ctx context.Context) ([]model.Org, error) {
	var orgs []model.Org
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		orgs, err = listOrgs(tx)
		return err
	})
	return orgs, err
}

// DeleteOrg removes an org with all its projects, tickets, tasks and the
// notes attached to any of them. Reports whether the org existed.
func (s *Store) DeleteOrg(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		ok, err := exists(tx, "orgs", id)
		if err != nil || !ok {
			return err
		}
		existed = true
		if _, err := tx.Exec(`
			DELETE FROM notes WHERE
				(entity_type = 'org' AND entity_id = ?)
				OR (entity_type = 'project' AND entity_id IN (SELECT id FROM projects WHERE org_id = ?))
				OR (entity_type = 'ticket' AND entity_id IN (
					SELECT t.id FROM tickets t JOIN projects p ON p.id = t.project_id WHERE p.org_id = ?))
				OR (entity_type = 'task' AND entity_id IN (
					SELECT k.id FROM tasks k
					JOIN tickets t ON t.id = k.ticket_id
					JOIN projects p ON p.id = t.project_id
					WHERE p.org_id = ?))
		`, id, id, id, id); err != nil {
			return fmt.Errorf("delete org notes: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM orgs WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete org: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if existed {
		s.logMutation(ctx, "deleted org", model.KindOrg, id)
	}
	return existed, nil
}

func insertOrg(tx *db.TxOps, org *model.Org) error {
	_, err := tx.Exec(`INSERT INTO orgs (`+orgColumns+`) VALUES (?, ?, ?)`,
		org.ID, org.Name, db.FormatTime(org.CreatedAt))
	if err != nil {
		return constraintError("insert", model.KindOrg, org.ID, err)
	}
	return nil
}

func getOrg(tx *db.TxOps, id string) (*model.Org, error) {
	org, err := scanOrg(tx.QueryRow(`SELECT `+orgColumns+` FROM orgs WHERE id = ?`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("org", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get org: %w", err)
	}
	return org, nil
}

func listOrgs(tx *db.TxOps) ([]model.Org, error) {
	rows, err := tx.Query(`SELECT ` + orgColumns + ` FROM orgs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list orgs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orgs []model.Org
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan org: %w", err)
		}
		orgs = append(orgs, *org)
	}
	return orgs, rows.Err()
}

func scanOrg(row rowScanner) (*model.Org, error) {
	var org model.Org
	var createdAt string
	if err := row.Scan(&org.ID, &org.Name, &createdAt); err != nil {
		return nil, err
	}
	t, err := db.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	org.CreatedAt = t
	return &org, nil
}
