package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/model"
)

var headingStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("205"))

// emit writes v as JSON under --json, otherwise calls text. A failed
// write to stdout is returned even when text does not check it.
func (a *app) emit(cmd *cobra.Command, v any, text func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	if a.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return nil
	}
	ew := &errWriter{w: w}
	if err := text(ew); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if ew.err != nil {
		return fmt.Errorf("write output: %w", ew.err)
	}
	return nil
}

// errWriter remembers the first write error and fails every later write.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newTable returns a tabwriter with a header row and underline.
func newTable(w io.Writer, columns ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	rules := make([]string, len(columns))
	for i, c := range columns {
		rules[i] = strings.Repeat("─", len(c))
	}
	fmt.Fprintln(tw, strings.Join(rules, "\t"))
	return tw
}

// fields prints aligned "name: value" lines, skipping empty values.
func fields(w io.Writer, pairs ...string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		fmt.Fprintf(tw, "%s:\t%s\n", pairs[i], pairs[i+1])
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}

func join(xs []string) string {
	return strings.Join(xs, ", ")
}

func printOrg(w io.Writer, o *model.Org) error {
	return fields(w, "ID", o.ID, "Name", o.Name, "Created", formatTime(o.CreatedAt))
}

func printProject(w io.Writer, p *model.Project) error {
	return fields(w,
		"ID", p.ID,
		"Org", p.OrgID,
		"Name", p.Name,
		"Repo", p.RepoPath,
		"Description", p.Description,
		"Created", formatTime(p.CreatedAt),
	)
}

func printTicket(w io.Writer, t *model.Ticket) error {
	if err := fields(w,
		"ID", t.ID,
		"Project", t.ProjectID,
		"Title", t.Title,
		"Status", string(t.Status),
		"Priority", string(t.Priority),
		"Assignees", join(t.Assignees),
		"Tags", join(t.Tags),
		"Repos", join(t.RelatedRepos),
		"Blockers", join(t.Blockers),
		"Created", formatTime(t.CreatedAt),
		"Started", formatTimePtr(t.StartedAt),
		"Completed", formatTimePtr(t.CompletedAt),
	); err != nil {
		return err
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	printCriteria(w, t.AcceptanceCriteria)
	printMetadata(w, t.Metadata)
	return nil
}

func printTask(w io.Writer, t *model.Task, deps []string) error {
	if err := fields(w,
		"ID", t.ID,
		"Ticket", t.TicketID,
		"Title", t.Title,
		"Status", string(t.Status),
		"Priority", string(t.Priority),
		"Complexity", string(t.Complexity),
		"Depends on", join(deps),
		"Created", formatTime(t.CreatedAt),
		"Completed", formatTimePtr(t.CompletedAt),
	); err != nil {
		return err
	}
	if t.Details != "" {
		fmt.Fprintf(w, "\n%s\n", t.Details)
	}
	printCriteria(w, t.AcceptanceCriteria)
	printMetadata(w, t.Metadata)
	return nil
}

func printNote(w io.Writer, n *model.Note) error {
	if err := fields(w,
		"ID", n.ID,
		"On", n.Target().String(),
		"Created", formatTime(n.CreatedAt),
	); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s\n", n.Content)
	return err
}

func printCriteria(w io.Writer, criteria []string) {
	if len(criteria) == 0 {
		return
	}
	fmt.Fprintln(w, "\nAcceptance criteria:")
	for _, c := range criteria {
		fmt.Fprintf(w, "  - %s\n", c)
	}
}

func printMetadata(w io.Writer, m model.Metadata) {
	if m.IsNull() {
		return
	}
	fmt.Fprintf(w, "\nMetadata: %s\n", m.String())
}

func printTickets(w io.Writer, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		_, err := fmt.Fprintln(w, "No tickets found.")
		return err
	}
	tw := newTable(w, "ID", "STATUS", "PRIORITY", "TITLE")
	for _, t := range tickets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, truncate(t.Title, 50))
	}
	return tw.Flush()
}

func printTasks(w io.Writer, tasks []model.Task) error {
	if len(tasks) == 0 {
		_, err := fmt.Fprintln(w, "No tasks found.")
		return err
	}
	tw := newTable(w, "ID", "STATUS", "PRIORITY", "COMPLEXITY", "TITLE")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, t.Complexity, truncate(t.Title, 50))
	}
	return tw.Flush()
}
