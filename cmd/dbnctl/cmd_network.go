package main

import (
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-dbn/internal/netdef"
	"github.com/danielpatrickdp/adaptive-dbn/internal/render"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// #region init
func newInitCmd(a *app) *cobra.Command {
	var example bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Store a network definition as the initial version",
		Long: `Loads the definition given by --def (or the built-in stock market
example with --example) and stores it as a parentless version that becomes
active. Refuses to run against a store that already has an active version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var def *netdef.Definition
			switch {
			case a.defPath != "":
				d, err := netdef.Load(a.defPath)
				if err != nil {
					return err
				}
				def = d
			case example:
				def = netdef.StockExample()
			default:
				return fmt.Errorf("one of --def or --example is required")
			}
			// fail early on a definition that does not build
			if _, err := def.Build(); err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if cur, err := store.GetCurrent(); err == nil {
				return fmt.Errorf("store already initialized (active version %s)", cur.VersionID)
			}
			rec, err := store.CreateInitial(def)
			if err != nil {
				return fmt.Errorf("create initial version: %w", err)
			}
			a.logger.Info("initial version created",
				zap.String("version_id", rec.VersionID),
				zap.String("network", rec.Name),
				zap.String("db", a.cfg.Database.Path),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s as version %s\n", rec.Name, rec.VersionID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&example, "example", false, "use the built-in stock market network")
	return cmd
}

// #endregion init

// #region info
func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print nodes, edges and CPTs of the active network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.loadNetwork()
			if err != nil {
				return err
			}
			return render.Info(cmd.OutOrStdout(), n)
		},
	}
}

// #endregion info

// #region dot
func newDotCmd(a *app) *cobra.Command {
	var slices int
	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Write the unrolled network as a Graphviz digraph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if slices < 1 {
				return fmt.Errorf("--slices must be at least 1")
			}
			n, err := a.loadNetwork()
			if err != nil {
				return err
			}
			return render.DOT(cmd.OutOrStdout(), n, slices)
		},
	}
	cmd.Flags().IntVar(&slices, "slices", 3, "number of time slices to draw")
	return cmd
}

// #endregion dot

// #region export
func newExportCmd(a *app) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the active network as a definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := a.loadNetwork()
			if err != nil {
				return err
			}
			def := netdef.FromNetwork(n)

			var data []byte
			switch format {
			case "json":
				data, err = def.JSON()
			case "yaml":
				data, err = def.YAML()
			default:
				return fmt.Errorf("unknown format %q (json or yaml)", format)
			}
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}

			if format == "json" {
				data = append(data, '\n')
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", n.Name, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "json", "json or yaml")
	return cmd
}

// #endregion export
