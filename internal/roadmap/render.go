package roadmap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
)

// Format selects a roadmap rendering.
type Format string

const (
	FormatSummary Format = "summary"
	FormatJSON    Format = "json"
)

// DefaultMaxOpenTasks is how many unfinished tasks the summary lists per
// ticket before collapsing the rest.
const DefaultMaxOpenTasks = 3

// ParseFormat validates s. An empty string selects the summary.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatSummary:
		return FormatSummary, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", errors.InvalidEnum("roadmap", "format", s, []string{string(FormatSummary), string(FormatJSON)})
}

// SummaryOptions tunes RenderSummary.
type SummaryOptions struct {
	// ActiveOnly hides done tickets. Counts still cover every ticket.
	ActiveOnly bool
	// MaxOpenTasks caps the unfinished tasks listed per ticket; 0 means
	// DefaultMaxOpenTasks.
	MaxOpenTasks int
	// Heading, when set, decorates heading lines (for terminal styling).
	Heading func(string) string
}

// Render writes r in the given format.
func Render(w io.Writer, r *Roadmap, format Format, opts SummaryOptions) error {
	switch format {
	case FormatJSON:
		return RenderJSON(w, r)
	case FormatSummary, "":
		return RenderSummary(w, r, opts)
	}
	return errors.InvalidEnum("roadmap", "format", string(format), []string{string(FormatSummary), string(FormatJSON)})
}

// RenderJSON writes the tree as indented JSON.
func RenderJSON(w io.Writer, r *Roadmap) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode roadmap: %w", err)
	}
	return nil
}

// RenderSummary writes a condensed checkbox view of the tree.
func RenderSummary(w io.Writer, r *Roadmap, opts SummaryOptions) error {
	maxOpen := opts.MaxOpenTasks
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenTasks
	}
	heading := opts.Heading
	if heading == nil {
		heading = func(s string) string { return s }
	}

	bw := bufio.NewWriter(w)
	line := func(format string, args ...any) {
		fmt.Fprintf(bw, format+"\n", args...)
	}

	line("%s", heading("# Roadmap Summary"))
	line("")
	line("%s", stats(r.TicketCompletion, r.TaskCompletion))

	for _, org := range r.Orgs {
		line("")
		line("%s", heading(fmt.Sprintf("## %s (%s)", org.Name, org.ID)))
		line("%s", stats(org.TicketCompletion, org.TaskCompletion))

		for _, proj := range org.Projects {
			line("")
			line("%s", heading(fmt.Sprintf("### %s (%s)", proj.Name, proj.ID)))
			if proj.Description != "" {
				line("_%s_", proj.Description)
			}
			line("%s", stats(proj.TicketCompletion, proj.TaskCompletion))

			for _, t := range proj.Tickets {
				if opts.ActiveOnly && t.Status == model.TicketDone {
					continue
				}
				title := t.Title
				if t.Priority == model.PriorityCritical || t.Priority == model.PriorityHigh {
					title += " (" + string(t.Priority) + ")"
				}
				line("- %s **%s**: %s", TicketMarker(t.Status), t.ID, title)
				line("  Tasks: %s", fraction(t.TaskCompletion))

				open := 0
				for _, task := range t.Tasks {
					if task.Status == model.TaskDone {
						continue
					}
					open++
					if open <= maxOpen {
						line("    - %s %s: %s", TaskMarker(task.Status), task.ID, task.Title)
					}
				}
				if open > maxOpen {
					line("    - ... and %d more", open-maxOpen)
				}
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write roadmap summary: %w", err)
	}
	return nil
}

// TicketMarker returns the checkbox marker for a ticket status.
func TicketMarker(s model.TicketStatus) string {
	switch s {
	case model.TicketDone:
		return "[x]"
	case model.TicketInProgress:
		return "[~]"
	case model.TicketPlanned:
		return "[P]"
	case model.TicketBlocked:
		return "[!]"
	default:
		return "[ ]"
	}
}

// TaskMarker returns the checkbox marker for a task status.
func TaskMarker(s model.TaskStatus) string {
	switch s {
	case model.TaskDone:
		return "[x]"
	case model.TaskInProgress:
		return "[~]"
	case model.TaskBlocked:
		return "[!]"
	default:
		return "[ ]"
	}
}

func fraction(c Completion) string {
	return fmt.Sprintf("%d/%d (%d%%)", c.Done, c.Total, c.Percent)
}

func stats(tickets, tasks Completion) string {
	return fmt.Sprintf("Tickets: %s done | Tasks: %s done", fraction(tickets), fraction(tasks))
}
