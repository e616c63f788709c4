package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

// newTicketCmd creates the ticket command group
func newTicketCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ticket",
		Aliases: []string{"tick"},
		Short:   "Manage tickets",
	}
	cmd.AddCommand(
		newTicketCreateCmd(a),
		newTicketUpdateCmd(a),
		newTicketListCmd(a),
		newTicketGetCmd(a),
		newTicketSearchCmd(a),
		newKindDeleteCmd(a, model.KindTicket, "Delete a ticket with its tasks and notes"),
	)
	return cmd
}

// ticketFields are the flags shared by ticket create and update.
type ticketFields struct {
	description string
	status      string
	priority    string
	assignees   []string
	tags        []string
	repos       []string
	criteria    []string
	blockers    []string
	metadata    string
}

func (f *ticketFields) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "description")
	cmd.Flags().StringVarP(&f.status, "status", "s", "", "status: backlog, planned, in-progress, done, blocked")
	cmd.Flags().StringVarP(&f.priority, "priority", "p", "", "priority: critical, high, medium, low")
	cmd.Flags().StringSliceVar(&f.assignees, "assignee", nil, "assignee (repeatable)")
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "tag (repeatable)")
	cmd.Flags().StringSliceVar(&f.repos, "repo", nil, "related repository (repeatable)")
	cmd.Flags().StringArrayVar(&f.criteria, "criteria", nil, "acceptance criterion (repeatable)")
	cmd.Flags().StringArrayVar(&f.blockers, "blocker", nil, "blocker (repeatable)")
	cmd.Flags().StringVar(&f.metadata, "metadata", "", "metadata as a JSON value")
}

func newTicketCreateCmd(a *app) *cobra.Command {
	var projectID string
	var f ticketFields
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a ticket in a project",
		Long: `Create a ticket in a project. Status defaults to backlog and priority
to medium.

Example:
  tpm ticket create --project PROJ-0123456789abcdef -p high --tag auth "Login page"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := model.ParseMetadata(f.metadata)
			if err != nil {
				return err
			}
			t, err := a.store.CreateTicket(cmd.Context(), store.NewTicket{
				ProjectID:          projectID,
				Title:              args[0],
				Description:        f.description,
				Status:             model.TicketStatus(f.status),
				Priority:           model.Priority(f.priority),
				Assignees:          f.assignees,
				Tags:               f.tags,
				RelatedRepos:       f.repos,
				AcceptanceCriteria: f.criteria,
				Blockers:           f.blockers,
				Metadata:           meta,
			})
			if err != nil {
				return err
			}
			return a.emit(cmd, t, func(w io.Writer) error { return printTicket(w, t) })
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "owning project id (required)")
	f.register(cmd)
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newTicketUpdateCmd(a *app) *cobra.Command {
	var title string
	var f ticketFields
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update ticket fields",
		Long: `Update ticket fields. Only the flags given change; list flags and
--metadata replace the stored value whole. Pass --tag "" to clear tags and
--metadata "" to clear metadata.

Moving to in-progress records the start time and moving to done the
completion time, the first time only.

Example:
  tpm ticket update TICK-0123456789abcdef --status in-progress --assignee ana`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := store.TicketPatch{
				Title:              changedString(cmd, "title", title),
				Description:        changedString(cmd, "description", f.description),
				Assignees:          changedList(cmd, "assignee", f.assignees),
				Tags:               changedList(cmd, "tag", f.tags),
				RelatedRepos:       changedList(cmd, "repo", f.repos),
				AcceptanceCriteria: changedList(cmd, "criteria", f.criteria),
				Blockers:           changedList(cmd, "blocker", f.blockers),
			}
			if cmd.Flags().Changed("status") {
				st := model.TicketStatus(f.status)
				patch.Status = &st
			}
			if cmd.Flags().Changed("priority") {
				p := model.Priority(f.priority)
				patch.Priority = &p
			}
			var err error
			if patch.Metadata, err = metadataFlag(cmd, f.metadata); err != nil {
				return err
			}

			t, err := a.store.UpdateTicket(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			return a.emit(cmd, t, func(w io.Writer) error { return printTicket(w, t) })
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "new title")
	f.register(cmd)
	return cmd
}

func registerTicketFilter(cmd *cobra.Command, filter *store.TicketFilter) (status, priority *string) {
	status, priority = new(string), new(string)
	cmd.Flags().StringVar(&filter.ProjectID, "project", "", "only tickets of this project")
	cmd.Flags().StringVarP(status, "status", "s", "", "only tickets with this status")
	cmd.Flags().StringVarP(priority, "priority", "p", "", "only tickets with this priority")
	return status, priority
}

func newTicketListCmd(a *app) *cobra.Command {
	var filter store.TicketFilter
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tickets",
		Args:    cobra.NoArgs,
	}
	status, priority := registerTicketFilter(cmd, &filter)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		filter.Status = model.TicketStatus(*status)
		filter.Priority = model.Priority(*priority)
		tickets, err := a.store.ListTickets(cmd.Context(), filter)
		if err != nil {
			return err
		}
		return a.emit(cmd, tickets, func(w io.Writer) error { return printTickets(w, tickets) })
	}
	return cmd
}

func newTicketSearchCmd(a *app) *cobra.Command {
	var filter store.TicketFilter
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search ticket titles and descriptions",
		Args:  cobra.ExactArgs(1),
	}
	status, priority := registerTicketFilter(cmd, &filter)
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultSearchLimit, "maximum results")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		filter.Status = model.TicketStatus(*status)
		filter.Priority = model.Priority(*priority)
		tickets, err := a.store.SearchTickets(cmd.Context(), args[0], filter, limit)
		if err != nil {
			return err
		}
		return a.emit(cmd, tickets, func(w io.Writer) error { return printTickets(w, tickets) })
	}
	return cmd
}

func newTicketGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Aliases: []string{"show"},
		Short:   "Show a ticket with its tasks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.store.GetTicketWithTasks(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(cmd, t, func(w io.Writer) error {
				if err := printTicket(w, t.Ticket); err != nil {
					return err
				}
				fmt.Fprintf(w, "\nTasks (%d):\n", len(t.Tasks))
				if len(t.Tasks) == 0 {
					return nil
				}
				return printTasks(w, t.Tasks)
			})
		},
	}
}
