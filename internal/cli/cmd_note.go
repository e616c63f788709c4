package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
)

// newNoteCmd creates the note command group
func newNoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Manage notes on organizations, projects, tickets and tasks",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <kind> <id> <content>",
			Short: "Attach a note",
			Long: `Attach a note to an org, project, ticket or task.

Example:
  tpm note add ticket TICK-0123456789abcdef "Agreed scope with design"`,
			Args: cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				target, err := parseTarget(args[0], args[1])
				if err != nil {
					return err
				}
				n, err := a.store.AddNote(cmd.Context(), target, args[2])
				if err != nil {
					return err
				}
				return a.emit(cmd, n, func(w io.Writer) error { return printNote(w, n) })
			},
		},
		&cobra.Command{
			Use:     "list [<kind> <id>]",
			Aliases: []string{"ls"},
			Short:   "List notes, all or for one target",
			Args: func(cmd *cobra.Command, args []string) error {
				if len(args) != 0 && len(args) != 2 {
					return fmt.Errorf("accepts no arguments or <kind> <id>, received %d", len(args))
				}
				return nil
			},
			RunE: func(cmd *cobra.Command, args []string) error {
				var target model.NoteTarget
				if len(args) == 2 {
					var err error
					if target, err = parseTarget(args[0], args[1]); err != nil {
						return err
					}
				}
				notes, err := a.store.ListNotes(cmd.Context(), target)
				if err != nil {
					return err
				}
				return a.emit(cmd, notes, func(w io.Writer) error { return printNotes(w, notes) })
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show a note",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := a.store.GetNote(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.emit(cmd, n, func(w io.Writer) error { return printNote(w, n) })
			},
		},
		newKindDeleteCmd(a, model.KindNote, "Delete a note"),
	)
	return cmd
}

func parseTarget(kind, id string) (model.NoteTarget, error) {
	k, err := model.ParseNoteTargetKind(kind)
	if err != nil {
		return model.NoteTarget{}, err
	}
	if id == "" {
		return model.NoteTarget{}, errors.Required("note", "entity_id")
	}
	return model.NoteTarget{Kind: k, ID: id}, nil
}

func printNotes(w io.Writer, notes []model.Note) error {
	if len(notes) == 0 {
		_, err := fmt.Fprintln(w, "No notes found.")
		return err
	}
	tw := newTable(w, "ID", "ON", "CREATED", "CONTENT")
	for _, n := range notes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.ID, n.Target(), formatTime(n.CreatedAt), truncate(n.Content, 60))
	}
	return tw.Flush()
}
