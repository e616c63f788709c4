package store

import (
	"context"
	"fmt"

	"github.com/randalmurphal/tpm/internal/db"
	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
)

// AddDependency records that taskID depends on dependsOnID. Both tasks must
// exist, a task cannot depend on itself, and each pair is stored once.
func (s *Store) AddDependency(ctx context.Context, taskID, dependsOnID string) error {
	dep := model.Dependency{TaskID: taskID, DependsOnID: dependsOnID}
	if err := dep.Validate(); err != nil {
		return err
	}

	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		if err := requireParent(tx, model.KindTask, "tasks", taskID); err != nil {
			return err
		}
		if err := requireParent(tx, model.KindTask, "tasks", dependsOnID); err != nil {
			return err
		}
		if err := insertDependency(tx, dep); err != nil {
			if errors.CodeOf(err) == errors.CodeConflict {
				return errors.Conflict("dependency", "depends_on_id", dependsOnID,
					fmt.Sprintf("task %s already depends on it", taskID))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logMutation(ctx, "added dependency", model.KindTask, taskID, "depends_on_id", dependsOnID)
	return nil
}

// RemoveDependency deletes a dependency edge. Reports whether it existed.
func (s *Store) RemoveDependency(ctx context.Context, taskID, dependsOnID string) (bool, error) {
	var existed bool
	err := s.db.RunInTx(ctx, func(tx *db.TxOps) error {
		res, err := tx.Exec(`DELETE FROM task_dependencies WHERE task_id = ? AND depends_on_id = ?`,
			taskID, dependsOnID)
		if err != nil {
			return fmt.Errorf("remove dependency: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("remove dependency: %w", err)
		}
		existed = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if existed {
		s.logMutation(ctx, "removed dependency", model.KindTask, taskID, "depends_on_id", dependsOnID)
	}
	return existed, nil
}

// ListDependencies returns the ids taskID depends on.
func (s *Store) ListDependencies(ctx context.Context, taskID string) ([]string, error) {
	var ids []string
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		if err := requireParent(tx, model.KindTask, "tasks", taskID); err != nil {
			return err
		}
		rows, err := tx.Query(`SELECT depends_on_id FROM task_dependencies WHERE task_id = ? ORDER BY depends_on_id`, taskID)
		if err != nil {
			return fmt.Errorf("list dependencies: %w", err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan dependency: %w", err)
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

// ListAllDependencies returns every dependency edge.
func (s *Store) ListAllDependencies(ctx context.Context) ([]model.Dependency, error) {
	var deps []model.Dependency
	err := s.db.ReadTx(ctx, func(tx *db.TxOps) error {
		var err error
		deps, err = listDependencies(tx)
		return err
	})
	return deps, err
}

func insertDependency(tx *db.TxOps, dep model.Dependency) error {
	_, err := tx.Exec(`INSERT INTO task_dependencies (task_id, depends_on_id) VALUES (?, ?)`,
		dep.TaskID, dep.DependsOnID)
	if err != nil {
		return constraintError("insert", "dependency", dep.TaskID+"->"+dep.DependsOnID, err)
	}
	return nil
}

func listDependencies(tx *db.TxOps) ([]model.Dependency, error) {
	rows, err := tx.Query(`SELECT task_id, depends_on_id FROM task_dependencies ORDER BY task_id, depends_on_id`)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []model.Dependency
	for rows.Next() {
		var d model.Dependency
		if err := rows.Scan(&d.TaskID, &d.DependsOnID); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}
