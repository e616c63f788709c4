package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/model"
)

// deleteResult reports one delete. Deleted is false when the id was unknown.
type deleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// newDeleteCmd creates the top-level delete command, which infers each
// id's kind from its prefix.
func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete entities by id",
		Long: `Delete entities by id. The kind is taken from the id prefix
(ORG-, PROJ-, TICK-, TASK-, NOTE-). Deleting a parent deletes everything
it owns. Unknown ids are reported but are not an error.

Example:
  tpm delete TASK-0123456789abcdef NOTE-fedcba9876543210`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.deleteIDs(cmd, "", args)
		},
	}
}

// newKindDeleteCmd creates "<kind> delete" for one entity kind.
func newKindDeleteCmd(a *app, kind model.EntityKind, short string) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   short,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.deleteIDs(cmd, kind, args)
		},
	}
}

func (a *app) deleteIDs(cmd *cobra.Command, kind model.EntityKind, ids []string) error {
	results := make([]deleteResult, 0, len(ids))
	for _, id := range ids {
		existed, err := a.store.Delete(cmd.Context(), kind, id)
		if err != nil {
			return err
		}
		results = append(results, deleteResult{ID: id, Deleted: existed})
	}
	return a.emit(cmd, results, func(w io.Writer) error {
		for _, r := range results {
			if r.Deleted {
				fmt.Fprintf(w, "Deleted %s\n", r.ID)
			} else {
				fmt.Fprintf(w, "%s not found, nothing to delete\n", r.ID)
			}
		}
		return nil
	})
}
