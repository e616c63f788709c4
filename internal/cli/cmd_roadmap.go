package cli

import (
	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/roadmap"
)

// newRoadmapCmd creates the roadmap command
func newRoadmapCmd(a *app) *cobra.Command {
	var scope roadmap.Scope
	var format string
	var opts roadmap.SummaryOptions
	cmd := &cobra.Command{
		Use:   "roadmap",
		Short: "Show progress across organizations, projects and tickets",
		Long: `Show progress rolled up from tasks to tickets, projects and
organizations.

The summary format is a markdown checklist: [x] done, [~] in progress,
[P] planned, [!] blocked, [ ] not started. --json is the same as
--format json.

Example:
  tpm roadmap
  tpm roadmap --project PROJ-0123456789abcdef --active-only
  tpm roadmap --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := roadmap.ParseFormat(format)
			if err != nil {
				return err
			}
			if a.jsonOut {
				f = roadmap.FormatJSON
			}
			if !cmd.Flags().Changed("max-tasks") {
				opts.MaxOpenTasks = a.cfg.Roadmap.MaxOpenTasks
			}
			out := cmd.OutOrStdout()
			if isTerminal(out) {
				opts.Heading = func(s string) string { return headingStyle.Render(s) }
			}

			r, err := roadmap.Build(cmd.Context(), a.store, scope)
			if err != nil {
				return err
			}
			return roadmap.Render(out, r, f, opts)
		},
	}
	cmd.Flags().StringVarP(&scope.OrgID, "org", "o", "", "only this organization")
	cmd.Flags().StringVar(&scope.ProjectID, "project", "", "only this project")
	cmd.Flags().StringVarP(&format, "format", "f", "summary", "output format: summary or json")
	cmd.Flags().BoolVarP(&opts.ActiveOnly, "active-only", "a", false, "hide done tickets in the summary")
	cmd.Flags().IntVar(&opts.MaxOpenTasks, "max-tasks", 0, "open tasks listed per ticket (default from config)")
	return cmd
}
