package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/export"
)

// newImportCmd creates the import command
func newImportCmd(a *app) *cobra.Command {
	var opts export.Options

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a document written by tpm export",
		Long: `Import a JSON or YAML document written by tpm export. Use - to read
stdin.

The whole document is validated before anything is written. Without
--force, any problem aborts the import and nothing changes, including
--clear. With --force, bad records are skipped and listed, and the rest
is imported.

Examples:
  tpm import backup.json --dry-run     # Validate only
  tpm import backup.json --clear       # Replace everything
  tpm import backup.yaml --force       # Import what can be imported`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			doc, err := export.Decode(data)
			if err != nil {
				return err
			}

			opts.Logger = a.logger
			report, err := export.Import(cmd.Context(), a.store, doc, opts)
			if err != nil {
				if report != nil {
					for _, p := range report.Errors {
						fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", p)
					}
				}
				return err
			}
			if err := a.emit(cmd, report, func(w io.Writer) error { return printImportReport(w, report) }); err != nil {
				return err
			}
			return report.Err()
		},
	}
	cmd.Flags().BoolVar(&opts.Clear, "clear", false, "delete all existing data first")
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "validate without writing")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "skip bad records instead of aborting")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func printImportReport(w io.Writer, r *export.Report) error {
	switch {
	case r.DryRun && len(r.Errors) == 0:
		_, err := fmt.Fprintln(w, "Dry run: the document is valid, nothing was written.")
		return err
	case r.DryRun:
		_, err := fmt.Fprintf(w, "Dry run: %d problem(s) found, nothing was written.\n", len(r.Errors))
		return err
	}
	if r.Cleared {
		fmt.Fprintln(w, "Cleared existing data.")
	}
	fmt.Fprintf(w, "Imported %s.\n", describeCounts(r.Created))
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "Skipped %d record(s).\n", len(r.Errors))
	}
	return nil
}
