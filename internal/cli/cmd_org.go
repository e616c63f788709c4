package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/model"
)

// newOrgCmd creates the org command group
func newOrgCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create an organization",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				org, err := a.store.CreateOrg(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.emit(cmd, org, func(w io.Writer) error { return printOrg(w, org) })
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List organizations",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				orgs, err := a.store.ListOrgs(cmd.Context())
				if err != nil {
					return err
				}
				return a.emit(cmd, orgs, func(w io.Writer) error { return printOrgs(w, orgs) })
			},
		},
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show an organization",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				org, err := a.store.GetOrg(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.emit(cmd, org, func(w io.Writer) error { return printOrg(w, org) })
			},
		},
		newKindDeleteCmd(a, model.KindOrg, "Delete an organization with all its projects, tickets, tasks and notes"),
	)
	return cmd
}

func printOrgs(w io.Writer, orgs []model.Org) error {
	if len(orgs) == 0 {
		_, err := fmt.Fprintln(w, "No organizations found. Create one with: tpm org create <name>")
		return err
	}
	tw := newTable(w, "ID", "NAME", "CREATED")
	for _, o := range orgs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.ID, o.Name, formatTime(o.CreatedAt))
	}
	return tw.Flush()
}
