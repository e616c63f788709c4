package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/store"
)

// infoView adds the config file to the store's info.
type infoView struct {
	*store.Info
	ConfigFile string `json:"config_file,omitempty"`
}

// newInfoCmd creates the info command
func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database location, schema version and row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.store.Info(cmd.Context())
			if err != nil {
				return err
			}
			view := infoView{Info: info, ConfigFile: a.cfg.File()}
			return a.emit(cmd, view, func(w io.Writer) error {
				if err := fields(w,
					"Database", info.Path,
					"Dialect", info.Dialect,
					"Schema version", strconv.Itoa(info.SchemaVersion),
					"Journal mode", info.JournalMode,
					"Config file", view.ConfigFile,
				); err != nil {
					return err
				}
				_, err := fmt.Fprintf(w, "\n%s\n", describeCounts(info.Counts))
				return err
			})
		},
	}
}
