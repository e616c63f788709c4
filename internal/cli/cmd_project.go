package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

// newProjectCmd creates the project command group
func newProjectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"proj"},
		Short:   "Manage projects",
	}
	cmd.AddCommand(
		newProjectCreateCmd(a),
		newProjectListCmd(a),
		&cobra.Command{
			Use:   "get <id>",
			Short: "Show a project",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := a.store.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.emit(cmd, p, func(w io.Writer) error { return printProject(w, p) })
			},
		},
		newProjectUpdateCmd(a),
		newKindDeleteCmd(a, model.KindProject, "Delete a project with all its tickets, tasks and notes"),
	)
	return cmd
}

func newProjectCreateCmd(a *app) *cobra.Command {
	var in store.NewProject
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project in an organization",
		Long: `Create a project in an organization. Project names are unique within
an organization.

Example:
  tpm project create --org ORG-0123456789abcdef --repo ~/src/api api`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			p, err := a.store.CreateProject(cmd.Context(), in)
			if err != nil {
				return err
			}
			return a.emit(cmd, p, func(w io.Writer) error { return printProject(w, p) })
		},
	}
	cmd.Flags().StringVarP(&in.OrgID, "org", "o", "", "owning organization id (required)")
	cmd.Flags().StringVar(&in.RepoPath, "repo", "", "repository path")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "description")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newProjectListCmd(a *app) *cobra.Command {
	var filter store.ProjectFilter
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := a.store.ListProjects(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return a.emit(cmd, projects, func(w io.Writer) error {
				if len(projects) == 0 {
					_, err := fmt.Fprintln(w, "No projects found.")
					return err
				}
				tw := newTable(w, "ID", "ORG", "NAME", "REPO")
				for _, p := range projects {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.OrgID, p.Name, p.RepoPath)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&filter.OrgID, "org", "o", "", "only projects of this organization")
	return cmd
}

func newProjectUpdateCmd(a *app) *cobra.Command {
	var name, repo, description string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a project's name, repo path or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := store.ProjectPatch{
				Name:        changedString(cmd, "name", name),
				RepoPath:    changedString(cmd, "repo", repo),
				Description: changedString(cmd, "description", description),
			}
			p, err := a.store.UpdateProject(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			return a.emit(cmd, p, func(w io.Writer) error { return printProject(w, p) })
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&repo, "repo", "", "new repository path")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	return cmd
}

// changedString returns &v when the flag was given, else nil.
func changedString(cmd *cobra.Command, flag, v string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &v
}

// changedList returns &v when the flag was given, else nil.
func changedList(cmd *cobra.Command, flag string, v []string) *[]string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	if v == nil {
		v = []string{}
	}
	return &v
}

// metadataFlag parses a --metadata value. Given but empty means null.
func metadataFlag(cmd *cobra.Command, v string) (*model.Metadata, error) {
	if !cmd.Flags().Changed("metadata") {
		return nil, nil
	}
	m, err := model.ParseMetadata(v)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
