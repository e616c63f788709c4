// Package cli implements the tpm command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/tpm/internal/config"
	"github.com/randalmurphal/tpm/internal/db"
	"github.com/randalmurphal/tpm/internal/db/driver"
	"github.com/randalmurphal/tpm/internal/store"
)

// Version is set at build time via ldflags.
var Version = "0.1.0-dev"

// annotationNoStore marks commands that run without opening the database.
const annotationNoStore = "tpm/no-store"

// app holds global flags and the resources opened for one invocation.
type app struct {
	cfgFile string
	dbPath  string
	verbose bool
	quiet   bool
	jsonOut bool

	cfg    *config.Config
	logger *slog.Logger
	db     *db.DB
	store  *store.Store
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "tpm",
		Short: "Local hierarchical work tracker",
		Long: `tpm tracks work as organizations > projects > tickets > tasks, with notes
on any of them and dependencies between tasks. Everything lives in one
local SQLite file (or a Postgres database).

Quick start:
  tpm org create acme
  tpm project create --org ORG-... api
  tpm ticket create --project PROJ-... "Login page"
  tpm task create --ticket TICK-... "Build the form"
  tpm roadmap`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	// Global flags
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is .tpm/config.yaml or ~/.config/tpm/config.yaml)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database file, or DSN for postgres (overrides config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "only log warnings and errors")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "output as JSON")

	root.AddCommand(newOrgCmd(a))
	root.AddCommand(newProjectCmd(a))
	root.AddCommand(newTicketCmd(a))
	root.AddCommand(newTaskCmd(a))
	root.AddCommand(newNoteCmd(a))
	root.AddCommand(newDepCmd(a))
	root.AddCommand(newDeleteCmd(a))
	root.AddCommand(newRoadmapCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newInfoCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the command line and prints any error to stderr.
func Execute() error {
	a := &app{}
	root := newRootCmd(a)
	defer a.close()

	err := root.ExecuteContext(context.Background())
	if err != nil {
		PrintError(root.ErrOrStderr(), err, a.verbose)
	}
	return err
}

// setup loads configuration, builds the logger and opens the store.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if !needsStore(cmd) {
		return nil
	}
	if a.verbose && a.quiet {
		return fmt.Errorf("--verbose and --quiet are mutually exclusive")
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		if cfg.Dialect == string(driver.DialectPostgres) {
			cfg.DSN = a.dbPath
		} else {
			cfg.DBPath = a.dbPath
		}
	}
	switch {
	case a.verbose:
		cfg.LogLevel = "debug"
	case a.quiet:
		cfg.LogLevel = "warn"
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(cmd.ErrOrStderr())
	if cfg.File() != "" {
		a.logger.Debug("using config file", "path", cfg.File())
	}

	dialect, err := driver.ParseDialect(cfg.Dialect)
	if err != nil {
		return err
	}
	d, err := db.OpenWithDialect(cfg.DataSource(), dialect)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = d
	if err := d.EnsureSchema(cmd.Context()); err != nil {
		return err
	}
	a.store = store.New(d, store.WithLogger(a.logger))
	a.logger.Debug("database ready", "dialect", cfg.Dialect)
	return nil
}

// needsStore is false for version, help and shell completion.
func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoStore] == "true" {
			return false
		}
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil && a.logger != nil {
		a.logger.Warn("close database", "error", err)
	}
	a.db = nil
}
