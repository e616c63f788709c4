package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/export"
	"github.com/randalmurphal/tpm/internal/store"
)

// exportResult reports a document written to a file.
type exportResult struct {
	Path  string       `json:"path"`
	Stats store.Counts `json:"stats"`
}

// newExportCmd creates the export command
func newExportCmd(a *app) *cobra.Command {
	var outputFile string
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all data as one JSON or YAML document",
		Long: `Export every organization, project, ticket, task, note and dependency
as one document that tpm import can load back.

The format defaults to JSON, or YAML when the output file ends in .yaml or
.yml.

Examples:
  tpm export                      # JSON to stdout
  tpm export -o backup.json
  tpm export -o backup.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = formatFromPath(outputFile)
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			doc, err := export.Export(cmd.Context(), a.store)
			if err != nil {
				return err
			}

			if outputFile == "" || outputFile == "-" {
				return export.Encode(cmd.OutOrStdout(), doc, f)
			}

			var buf bytes.Buffer
			if err := export.Encode(&buf, doc, f); err != nil {
				return err
			}
			if err := os.WriteFile(outputFile, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			a.logger.Debug("export written", "path", outputFile, "bytes", buf.Len())
			return a.emit(cmd, exportResult{Path: outputFile, Stats: doc.Stats}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Exported %s to %s\n", describeCounts(doc.Stats), outputFile)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml")
	return cmd
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return string(export.FormatYAML)
	}
	return ""
}

// describeCounts renders counts as "1 org, 2 projects, ...".
func describeCounts(c store.Counts) string {
	parts := []struct {
		n    int
		name string
	}{
		{c.Orgs, "org"},
		{c.Projects, "project"},
		{c.Tickets, "ticket"},
		{c.Tasks, "task"},
		{c.Notes, "note"},
		{c.Dependencies, "dependency"},
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, plural(p.n, p.name))
	}
	return strings.Join(out, ", ")
}

func plural(n int, name string) string {
	if n == 1 {
		return "1 " + name
	}
	if strings.HasSuffix(name, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(name, "y"))
	}
	return fmt.Sprintf("%d %ss", n, name)
}
