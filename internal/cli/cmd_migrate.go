package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/legacy"
)

// newMigrateCmd creates the migrate command
func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <path>",
		Short: "Migrate data from the legacy tracker",
		Long: `Migrate data from the legacy tracker into the current database.

<path> is either a legacy tracker directory (index.json, orgs/<org>/...,
roadmap.json files) or a single legacy JSON file, nested
(orgs[].projects[].features[]) or flat (top-level orgs, projects,
features or tickets, tasks, notes and task_dependencies arrays).

Every record is written on its own. A bad record is reported and skipped,
along with anything that needed it, and the rest is migrated. Use - to
read a JSON document from stdin.

Examples:
  tpm migrate ~/.tracker
  tpm migrate tracker-export.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := legacy.New(a.store, legacy.WithLogger(a.logger))

			var stats *legacy.Stats
			var err error
			if args[0] == "-" {
				data, readErr := readInput(cmd, args[0])
				if readErr != nil {
					return readErr
				}
				stats, err = m.MigrateDocument(cmd.Context(), data)
			} else {
				stats, err = m.Migrate(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			if err := a.emit(cmd, stats, func(w io.Writer) error {
				fmt.Fprintf(w, "Migrated %s.\n", describeCounts(stats.Created))
				if len(stats.Errors) > 0 {
					fmt.Fprintf(w, "Failed %d record(s).\n", len(stats.Errors))
				}
				return nil
			}); err != nil {
				return err
			}
			return stats.Err()
		},
	}
}
