package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

// newTaskCmd creates the task command group
func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(
		newTaskCreateCmd(a),
		newTaskUpdateCmd(a),
		newTaskListCmd(a),
		newTaskGetCmd(a),
		newKindDeleteCmd(a, model.KindTask, "Delete a task with its notes and dependencies"),
	)
	return cmd
}

// taskFields are the flags shared by task create and update.
type taskFields struct {
	details    string
	status     string
	priority   string
	complexity string
	criteria   []string
	metadata   string
}

func (f *taskFields) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.details, "details", "d", "", "details")
	cmd.Flags().StringVarP(&f.status, "status", "s", "", "status: pending, in-progress, done, blocked")
	cmd.Flags().StringVarP(&f.priority, "priority", "p", "", "priority: critical, high, medium, low")
	cmd.Flags().StringVarP(&f.complexity, "complexity", "c", "", "complexity: simple, medium, complex")
	cmd.Flags().StringArrayVar(&f.criteria, "criteria", nil, "acceptance criterion (repeatable)")
	cmd.Flags().StringVar(&f.metadata, "metadata", "", "metadata as a JSON value")
}

func newTaskCreateCmd(a *app) *cobra.Command {
	var ticketID string
	var f taskFields
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task in a ticket",
		Long: `Create a task in a ticket. Status defaults to pending, priority and
complexity to medium.

Example:
  tpm task create --ticket TICK-0123456789abcdef -c simple "Build the form"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := model.ParseMetadata(f.metadata)
			if err != nil {
				return err
			}
			t, err := a.store.CreateTask(cmd.Context(), store.NewTask{
				TicketID:           ticketID,
				Title:              args[0],
				Details:            f.details,
				Status:             model.TaskStatus(f.status),
				Priority:           model.Priority(f.priority),
				Complexity:         model.Complexity(f.complexity),
				AcceptanceCriteria: f.criteria,
				Metadata:           meta,
			})
			if err != nil {
				return err
			}
			return a.emit(cmd, t, func(w io.Writer) error { return printTask(w, t, nil) })
		},
	}
	cmd.Flags().StringVar(&ticketID, "ticket", "", "owning ticket id (required)")
	f.register(cmd)
	_ = cmd.MarkFlagRequired("ticket")
	return cmd
}

func newTaskUpdateCmd(a *app) *cobra.Command {
	var title string
	var f taskFields
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task fields",
		Long: `Update task fields. Only the flags given change. Moving to done
records the completion time, the first time only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := store.TaskPatch{
				Title:              changedString(cmd, "title", title),
				Details:            changedString(cmd, "details", f.details),
				AcceptanceCriteria: changedList(cmd, "criteria", f.criteria),
			}
			if cmd.Flags().Changed("status") {
				st := model.TaskStatus(f.status)
				patch.Status = &st
			}
			if cmd.Flags().Changed("priority") {
				p := model.Priority(f.priority)
				patch.Priority = &p
			}
			if cmd.Flags().Changed("complexity") {
				c := model.Complexity(f.complexity)
				patch.Complexity = &c
			}
			var err error
			if patch.Metadata, err = metadataFlag(cmd, f.metadata); err != nil {
				return err
			}

			t, err := a.store.UpdateTask(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			return a.emit(cmd, t, func(w io.Writer) error { return printTask(w, t, nil) })
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	f.register(cmd)
	return cmd
}

func newTaskListCmd(a *app) *cobra.Command {
	var ticketID, status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.store.ListTasks(cmd.Context(), store.TaskFilter{
				TicketID: ticketID,
				Status:   model.TaskStatus(status),
			})
			if err != nil {
				return err
			}
			return a.emit(cmd, tasks, func(w io.Writer) error { return printTasks(w, tasks) })
		},
	}
	cmd.Flags().StringVar(&ticketID, "ticket", "", "only tasks of this ticket")
	cmd.Flags().StringVarP(&status, "status", "s", "", "only tasks with this status")
	return cmd
}

// taskView is a task plus the ids it depends on.
type taskView struct {
	*model.Task
	DependsOn []string `json:"depends_on"`
}

func newTaskGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Aliases: []string{"show"},
		Short:   "Show a task and what it depends on",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.store.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			deps, err := a.store.ListDependencies(cmd.Context(), t.ID)
			if err != nil {
				return err
			}
			if deps == nil {
				deps = []string{}
			}
			return a.emit(cmd, taskView{Task: t, DependsOn: deps}, func(w io.Writer) error { return printTask(w, t, deps) })
		},
	}
}
