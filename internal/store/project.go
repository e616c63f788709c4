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

const projectColumns = `id, org_id, name, repo_path, description, created_at`

// NewProject holds the fields for CreateProject.
type NewProject struct {
	OrgID       string
	Name        string
	RepoPath    string
	Description string
}

// ProjectPatch lists the project fields to change. Nil fields are untouched.
type ProjectPatch struct {
	Name        *string
	RepoPath    *string
	Description *string
}

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	OrgID string
}

// CreateProject creates a project under an existing org.
func (s *Store) CreateProject(ctx context.Context, in NewProject) (*model.Project, error) {
	p := &model.Project{
		ID:          s.newID(model.KindProject),
		OrgID:       in.OrgID,
		Name:        in.Name,
		RepoPath:    in.RepoPath,
		Description: in.Description,
		CreatedAt:   s.timestamp(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		if err := requireParent(tx, model.KindOrg, "orgs", p.OrgID); err != nil {
			return err
		}
		if err := checkProjectName(tx, p.OrgID, p.Name, ""); err != nil {
			return err
		}
		return insertProject(tx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logMutation(ctx, "created project", model.KindProject, p.ID, "org_id", p.OrgID, "name", p.Name)
	return p, nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p *model.Project
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		p, err = getProject(tx, id)
		return err
	})
	return p, err
}

// ListProjects returns projects, oldest first.
func (s *Store) ListProjects(ctx context.Context, filter ProjectFilter) ([]model.Project, error) {
	var projects []model.Project
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		projects, err = listProjects(tx, filter)
		return err
	})
	return projects, err
}

// UpdateProject applies patch to a project and returns the updated row.
func (s *Store) UpdateProject(ctx context.Context, id string, patch ProjectPatch) (*model.Project, error) {
	var p *model.Project
	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		var err error
		p, err = getProject(tx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.RepoPath != nil {
			p.RepoPath = *patch.RepoPath
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if patch.Name != nil {
			if err := checkProjectName(tx, p.OrgID, p.Name, p.ID); err != nil {
				return err
			}
		}
		_, err = tx.Exec(`UPDATE projects SET name = ?, repo_path = ?, description = ? WHERE id = ?`,
			p.Name, nullString(p.RepoPath), nullString(p.Description), p.ID)
		if err != nil {
			return constraintError("update", model.KindProject, p.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logMutation(ctx, "updated project", model.KindProject, id)
	return p, nil
}

// DeleteProject removes a project with its tickets, tasks and their notes.
// Reports whether the project existed.
func (s *Store) DeleteProject(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		ok, err := exists(tx, "projects", id)
		if err != nil || !ok {
			return err
		}
		existed = true
		if _, err := tx.Exec(`
			DELETE FROM notes WHERE
				(entity_type = 'project' AND entity_id = ?)
				OR (entity_type = 'ticket' AND entity_id IN (SELECT id FROM tickets WHERE project_id = ?))
				OR (entity_type = 'task' AND entity_id IN (
					SELECT k.id FROM tasks k JOIN tickets t ON t.id = k.ticket_id WHERE t.project_id = ?))
		`, id, id, id); err != nil {
			return fmt.Errorf("delete project notes: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM projects WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if existed {
		s.logMutation(ctx, "deleted project", model.KindProject, id)
	}
	return existed, nil
}

// checkProjectName returns a ConflictError when another project in the org
// already uses name. selfID is excluded from the check.
func checkProjectName(tx *db.TxOps, orgID, name, selfID string) error {
	var other string
	err := tx.QueryRow(`SELECT id FROM projects WHERE org_id = ? AND name = ? AND id <> ?`,
		orgID, name, selfID).Scan(&other)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check project name: %w", err)
	}
	c := errors.Conflict("project", "name", name, "project names are unique within an org")
	c.ID = other
	return c
}

func insertProject(tx *db.TxOps, p *model.Project) error {
	_, err := tx.Exec(`INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrgID, p.Name, nullString(p.RepoPath), nullString(p.Description), db.FormatTime(p.CreatedAt))
	if err != nil {
		return constraintError("insert", model.KindProject, p.ID, err)
	}
	return nil
}

func getProject(tx *db.TxOps, id string) (*model.Project, error) {
	p, err := scanProject(tx.QueryRow(`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func listProjects(tx *db.TxOps, filter ProjectFilter) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if filter.OrgID != "" {
		query += ` WHERE org_id = ?`
		args = append(args, filter.OrgID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

func scanProject(row rowScanner) (*model.Project, error) {
	var p model.Project
	var repoPath, description sql.NullString
	var createdAt string
	if err := row.Scan(&p.ID, &p.OrgID, &p.Name, &repoPath, &description, &createdAt); err != nil {
		return nil, err
	}
	t, err := db.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	p.RepoPath = repoPath.String
	p.Description = description.String
	p.CreatedAt = t
	return &p, nil
}
