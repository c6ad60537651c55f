package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/danielpatrickdp/adaptive-dbn/internal/logging"
	"github.com/danielpatrickdp/adaptive-dbn/internal/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// #region inspect
func newInspectCmd(a *app) *cobra.Command {
	var (
		last    int
		version string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List stored versions or show one version's update log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			w := cmd.OutOrStdout()
			if version != "" {
				return runDetailMode(w, store, version, last, jsonOut)
			}
			return runListMode(w, store, last, jsonOut)
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent versions (or log entries with --version)")
	cmd.Flags().StringVar(&version, "version", "", "show single version detail")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of table")
	return cmd
}

type listRow struct {
	VersionID string `json:"version_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	Updates   int    `json:"updates"`
	Tables    int    `json:"tables"`
	CreatedAt string `json:"created_at"`
}

func runListMode(w io.Writer, store *state.Store, last int, jsonOut bool) error {
	versions, err := store.ListVersions(last)
	if err != nil {
		return err
	}
	active := ""
	if cur, err := store.GetCurrent(); err == nil {
		active = cur.VersionID
	}

	rows := make([]listRow, len(versions))
	for i, v := range versions {
		rows[i] = listRow{
			VersionID: v.VersionID,
			ParentID:  v.ParentID,
			Name:      v.Name,
			Active:    v.VersionID == active,
			Updates:   v.Updates,
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if v.Definition != nil {
			rows[i].Tables = len(v.Definition.CPTs)
		}
	}

	if jsonOut {
		return printJSON(w, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no versions found")
		return nil
	}

	fmt.Fprintf(w, "  %-12s  %-12s  %-16s  %7s  %6s  %s\n", "Version", "Parent", "Network", "Updates", "Tables", "Time")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("-", 78))
	for _, r := range rows {
		marker := " "
		if r.Active {
			marker = "*"
		}
		parent := "-"
		if r.ParentID != "" {
			parent = shortID(r.ParentID)
		}
		fmt.Fprintf(w, "%s %-12s  %-12s  %-16s  %7d  %6d  %s\n",
			marker, shortID(r.VersionID), parent, r.Name, r.Updates, r.Tables, r.CreatedAt)
	}
	return nil
}

type detailOutput struct {
	VersionID string           `json:"version_id"`
	ParentID  string           `json:"parent_id,omitempty"`
	Name      string           `json:"name"`
	CreatedAt string           `json:"created_at"`
	Metrics   json.RawMessage  `json:"metrics,omitempty"`
	Updates   []updateLogEntry `json:"updates"`
}

type updateLogEntry struct {
	Variable     string   `json:"variable"`
	Parents      []string `json:"parents"`
	Observed     string   `json:"observed"`
	LearningRate float64  `json:"lr"`
	Decision     string   `json:"decision"`
	Reason       string   `json:"reason,omitempty"`
	Shift        float64  `json:"shift"`
}

func runDetailMode(w io.Writer, store *state.Store, versionID string, limit int, jsonOut bool) error {
	rec, err := store.GetVersion(versionID)
	if err != nil {
		return err
	}
	entries, err := logging.ListUpdates(store.DB(), versionID, limit)
	if err != nil {
		return err
	}

	out := detailOutput{
		VersionID: rec.VersionID,
		ParentID:  rec.ParentID,
		Name:      rec.Name,
		CreatedAt: rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Updates:   make([]updateLogEntry, len(entries)),
	}
	if rec.MetricsJSON != "" {
		out.Metrics = json.RawMessage(rec.MetricsJSON)
	}
	for i, e := range entries {
		out.Updates[i] = updateLogEntry{
			Variable:     e.Variable,
			Parents:      e.Parents,
			Observed:     e.Observed,
			LearningRate: e.LearningRate,
			Decision:     e.Decision,
			Reason:       e.Reason,
			Shift:        e.Shift,
		}
	}

	if jsonOut {
		return printJSON(w, out)
	}

	fmt.Fprintf(w, "Version:    %s\n", out.VersionID)
	if out.ParentID != "" {
		fmt.Fprintf(w, "Parent:     %s\n", out.ParentID)
	}
	fmt.Fprintf(w, "Network:    %s\n", out.Name)
	fmt.Fprintf(w, "Created:    %s\n", out.CreatedAt)
	if out.Metrics != nil {
		fmt.Fprintf(w, "Metrics:    %s\n", out.Metrics)
	}
	fmt.Fprintf(w, "\nUpdates logged against this version: %d\n", len(out.Updates))
	for _, u := range out.Updates {
		fmt.Fprintf(w, "  %-8s %s(%s) -> %s  lr=%.3f shift=%.6f",
			u.Decision, u.Variable, strings.Join(u.Parents, ", "), u.Observed, u.LearningRate, u.Shift)
		if u.Reason != "" && u.Decision != "commit" {
			fmt.Fprintf(w, "  (%s)", u.Reason)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// #endregion inspect

// #region rollback
func newRollbackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <version-id>",
		Short: "Make a stored version active again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Rollback(args[0]); err != nil {
				return err
			}
			a.logger.Info("rolled back", zap.String("version_id", args[0]))
			fmt.Fprintf(cmd.OutOrStdout(), "Active version is now %s\n", args[0])
			return nil
		},
	}
}

// #endregion rollback

// #region helpers
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion helpers
