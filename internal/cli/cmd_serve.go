package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/mcpserver"
)

// newServeCmd creates the serve command
func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the tracker as MCP tools over stdio",
		Long: `Serve the tracker to an MCP client over stdin and stdout. Logs go to
stderr. Stops when stdin closes or on SIGINT/SIGTERM.

Example client configuration:
  {"command": "tpm", "args": ["serve"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := mcpserver.New(a.store,
				mcpserver.WithLogger(a.logger),
				mcpserver.WithVersion(Version),
				mcpserver.WithMaxOpenTasks(a.cfg.Roadmap.MaxOpenTasks),
			)
			return srv.ServeStdio(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
