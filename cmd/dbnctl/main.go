package main

import (
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-dbn/internal/config"
	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/danielpatrickdp/adaptive-dbn/internal/logging"
	"github.com/danielpatrickdp/adaptive-dbn/internal/netdef"
	"github.com/danielpatrickdp/adaptive-dbn/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region root
// app carries what every subcommand shares once the root has parsed flags.
type app struct {
	configPath string
	dbPath     string
	defPath    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "dbnctl",
		Short: "Build, query and train dynamic Bayesian networks",
		Long: `dbnctl manages versioned dynamic Bayesian networks stored in SQLite.

A network is loaded from a YAML definition (init), queried with single-step
inference (forecast, serve), trained online from observation streams (learn,
serve) and scored against them (eval). Stored versions can be inspected and
rolled back (inspect, rollback).`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to dbn.yaml")
	pf.StringVar(&a.dbPath, "db", "", "path to the network store (overrides config)")
	pf.StringVar(&a.defPath, "def", "", "read the network from a definition file instead of the store")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newInitCmd(a),
		newInfoCmd(a),
		newDotCmd(a),
		newExportCmd(a),
		newForecastCmd(a),
		newLearnCmd(a),
		newEvalCmd(a),
		newInspectCmd(a),
		newRollbackCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	level := cfg.Logging.Level
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.NewLogger(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger.With(zap.String("command", cmd.Name()))
	return nil
}

// #endregion root

// #region helpers
func (a *app) openStore() (*state.Store, error) {
	store, err := state.NewStore(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", a.cfg.Database.Path, err)
	}
	return store, nil
}

// loadNetwork builds the network from --def when given, otherwise from the
// store's active version.
func (a *app) loadNetwork() (*dbn.Network, error) {
	if a.defPath != "" {
		def, err := netdef.Load(a.defPath)
		if err != nil {
			return nil, err
		}
		return def.Build()
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	rec, err := store.GetCurrent()
	if err != nil {
		return nil, fmt.Errorf("no active network in %s (run init first): %w", a.cfg.Database.Path, err)
	}
	return rec.Network()
}

// #endregion helpers
