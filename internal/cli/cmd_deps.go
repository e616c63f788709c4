package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// depView is one side of a dependency listing.
type depView struct {
	TaskID    string   `json:"task_id"`
	DependsOn []string `json:"depends_on"`
}

// newDepCmd creates the dep command group
func newDepCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dep",
		Aliases: []string{"deps"},
		Short:   "Manage task dependencies",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <task> <depends-on>",
			Short: "Record that a task depends on another",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.store.AddDependency(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				return a.showDeps(cmd, args[0])
			},
		},
		&cobra.Command{
			Use:     "remove <task> <depends-on>",
			Aliases: []string{"rm"},
			Short:   "Remove a task dependency",
			Args:    cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				removed, err := a.store.RemoveDependency(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if !removed {
					a.logger.Info("dependency not found", "task", args[0], "depends_on", args[1])
				}
				return a.showDeps(cmd, args[0])
			},
		},
		&cobra.Command{
			Use:     "list <task>",
			Aliases: []string{"ls"},
			Short:   "List what a task depends on",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := a.store.GetTask(cmd.Context(), args[0]); err != nil {
					return err
				}
				return a.showDeps(cmd, args[0])
			},
		},
	)
	return cmd
}

func (a *app) showDeps(cmd *cobra.Command, taskID string) error {
	deps, err := a.store.ListDependencies(cmd.Context(), taskID)
	if err != nil {
		return err
	}
	if deps == nil {
		deps = []string{}
	}
	return a.emit(cmd, depView{TaskID: taskID, DependsOn: deps}, func(w io.Writer) error {
		if len(deps) == 0 {
			fmt.Fprintf(w, "%s has no dependencies\n", taskID)
			return nil
		}
		fmt.Fprintf(w, "%s depends on:\n", taskID)
		for _, d := range deps {
			fmt.Fprintf(w, "  %s\n", d)
		}
		return nil
	})
}
