// backmig migrates one Backlog project between spaces: export captures the
// source project into a local SQLite staging database, map-users builds the
// cross-space user mapping, and import replays everything into the target
// project.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/backmig/backmig/internal/config"
	"github.com/backmig/backmig/internal/logging"
	"github.com/backmig/backmig/internal/staging"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "backmig",
		Short: "Migrate a Backlog project from one space to another",
		Long: `backmig migrates a Backlog project between spaces through the v2 REST API,
staging everything locally so every phase can be rerun after a failure.

Run the phases in order: export, map-users, import.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./backmig.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	root.AddCommand(newExportCmd())
	root.AddCommand(newMapUsersCmd())
	root.AddCommand(newImportCmd())
	root.AddCommand(newStatusCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and opens the staging store, attaching the log
// so operator messages are echoed into the tool_log table.
func setup(ctx context.Context, needSource, needTarget bool) (*config.Config, *staging.Store, *logging.Log, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(needSource, needTarget); err != nil {
		return nil, nil, nil, err
	}

	log := logging.New(verbose || cfg.Debug)
	store, err := staging.Open(ctx, cfg.DirDB)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Attach(store)
	return cfg, store, log, nil
}
