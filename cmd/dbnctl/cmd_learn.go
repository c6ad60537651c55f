package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/danielpatrickdp/adaptive-dbn/internal/eval"
	"github.com/danielpatrickdp/adaptive-dbn/internal/logging"
	"github.com/danielpatrickdp/adaptive-dbn/internal/replay"
	"github.com/danielpatrickdp/adaptive-dbn/internal/state"
	"github.com/danielpatrickdp/adaptive-dbn/internal/update"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// #region forecast
func newForecastCmd(a *app) *cobra.Command {
	var (
		evidence []string
		start    int
		steps    int
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Roll the network forward from observed evidence",
		Long: `Infers every variable at each step from --start, writing the most
likely value back as evidence so later variables and steps condition on it.

Example:
  dbnctl forecast --evidence MarketSentiment@0=Bullish --evidence PriceMove@0=Increase --steps 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			ev, err := parseEvidence(evidence)
			if err != nil {
				return err
			}
			n, err := a.loadNetwork()
			if err != nil {
				return err
			}
			out, _, err := replay.Forecast(n, ev, start, steps)
			printForecast(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringArrayVarP(&evidence, "evidence", "e", nil, "observed value as Variable@t=value (repeatable)")
	cmd.Flags().IntVar(&start, "start", 1, "first time index to forecast")
	cmd.Flags().IntVar(&steps, "steps", 1, "number of time indices to forecast")
	return cmd
}

// parseEvidence reads Variable@t=value items.
func parseEvidence(items []string) (dbn.Evidence, error) {
	ev := make(dbn.Evidence, len(items))
	for _, item := range items {
		lhs, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("evidence %q: want Variable@t=value", item)
		}
		name, ts, ok := strings.Cut(lhs, "@")
		if !ok || name == "" {
			return nil, fmt.Errorf("evidence %q: want Variable@t=value", item)
		}
		t, err := strconv.Atoi(ts)
		if err != nil {
			return nil, fmt.Errorf("evidence %q: time: %w", item, err)
		}
		ev[dbn.TimeKey{Variable: name, Time: t}] = value
	}
	return ev, nil
}

func printForecast(w io.Writer, steps []replay.Step) {
	for _, step := range steps {
		fmt.Fprintf(w, "t=%d\n", step.Time)
		for _, p := range step.Predictions {
			if p.Observed {
				fmt.Fprintf(w, "  %s = %s (observed)\n", p.Variable, p.Choice)
				continue
			}
			fmt.Fprintf(w, "  P(%s_%d | evidence) =\n", p.Variable, step.Time)
			for _, o := range p.Dist {
				fmt.Fprintf(w, "    %-9s: %.3f\n", o.Value, o.P)
			}
			fmt.Fprintf(w, "  => %s = %s\n", p.Variable, p.Choice)
		}
	}
}

// #endregion forecast

// #region learn
func newLearnCmd(a *app) *cobra.Command {
	var (
		fixturePath string
		lr          float64
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Stream observations through the online learner",
		Long: `Applies each observation in --observations to the active network in
order, logs every step against the active version and commits the result as
a new version. Rejected observations are logged and skipped.

The learning rate is taken from --lr, then the file's learning_rate, then
the configured learner.learning_rate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := replay.LoadFixture(fixturePath)
			if err != nil {
				return err
			}
			cfg := update.Config{LearningRate: a.cfg.Learner.LearningRate}
			if f.LearningRate != 0 {
				cfg.LearningRate = f.LearningRate
			}
			if cmd.Flags().Changed("lr") {
				cfg.LearningRate = lr
			}

			if a.defPath != "" {
				n, err := a.loadNetwork()
				if err != nil {
					return err
				}
				return a.runLearn(cmd.OutOrStdout(), n, f, cfg, nil, state.NetworkRecord{}, true)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			rec, err := store.GetCurrent()
			if err != nil {
				return fmt.Errorf("no active network (run init first): %w", err)
			}
			n, err := rec.Network()
			if err != nil {
				return err
			}
			return a.runLearn(cmd.OutOrStdout(), n, f, cfg, store, rec, dryRun)
		},
	}
	cmd.Flags().StringVar(&fixturePath, "observations", "", "observation stream JSON")
	cmd.Flags().Float64Var(&lr, "lr", 0, "learning rate in (0, 1]")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report results without storing anything")
	cmd.MarkFlagRequired("observations")
	return cmd
}

func (a *app) runLearn(w io.Writer, n *dbn.Network, f *replay.Fixture, cfg update.Config,
	store *state.Store, base state.NetworkRecord, dryRun bool) error {

	stream := append(f.Stream(), f.TrajectoryObservations(n)...)
	harness := eval.NewEvalHarness(eval.DefaultEvalConfig())
	before := harness.Run(n, stream)
	results := replay.Replay(n, stream, cfg)
	summary := replay.Summarize(results)
	after := harness.Run(n, stream)

	for _, r := range results {
		fields := []zap.Field{
			zap.Int("index", r.Index),
			zap.String("variable", r.Observation.Variable),
			zap.Strings("parents", r.Observation.Parents),
			zap.String("value", r.Observation.Value),
			zap.String("action", r.Action),
			zap.Float64("shift", r.Metrics.Shift),
		}
		if r.Err != nil {
			a.logger.Warn("observation rejected", append(fields, zap.Error(r.Err))...)
		} else {
			a.logger.Debug("observation applied", fields...)
		}
		if store == nil || dryRun {
			continue
		}
		err := logging.LogUpdate(store.DB(), logging.UpdateEntry{
			VersionID:    base.VersionID,
			Variable:     r.Observation.Variable,
			Parents:      r.Observation.Parents,
			Observed:     r.Observation.Value,
			LearningRate: r.Observation.LearningRate,
			Decision:     r.Action,
			Reason:       r.Reason,
			Shift:        r.Metrics.Shift,
		})
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "Observations: %d  commits: %d  no-ops: %d  rejects: %d\n",
		summary.TotalObservations, summary.Commits, summary.NoOps, summary.Rejects)
	fmt.Fprintf(w, "Log-loss on stream: %.4f -> %.4f  accuracy: %.3f -> %.3f\n",
		before.Metric("log_loss"), after.Metric("log_loss"),
		before.Metric("accuracy"), after.Metric("accuracy"))
	if !after.Passed {
		a.logger.Warn("learned network failed evaluation", zap.String("reason", after.Reason))
	}

	if store != nil && !dryRun && summary.Commits > 0 {
		metricsJSON, err := json.Marshal(learnMetrics{Summary: summary, Eval: after})
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		rec := state.Snapshot(n, base.VersionID)
		rec.MetricsJSON = string(metricsJSON)
		if err := store.CommitVersion(rec); err != nil {
			return err
		}
		a.logger.Info("learned version committed",
			zap.String("version_id", rec.VersionID),
			zap.String("parent_id", base.VersionID),
			zap.Int("commits", summary.Commits),
		)
		fmt.Fprintf(w, "Committed version %s (parent %s)\n", rec.VersionID, base.VersionID)
	}

	if mm := f.Mismatches(results); len(mm) > 0 {
		for _, m := range mm {
			fmt.Fprintf(w, "MISMATCH %s\n", m)
		}
		return fmt.Errorf("%d expectation(s) not met", len(mm))
	}
	return nil
}

// learnMetrics is stored as the metrics of a learned version.
type learnMetrics struct {
	Summary replay.ReplaySummary `json:"summary"`
	Eval    eval.EvalResult      `json:"eval"`
}

// #endregion learn

// #region eval
func newEvalCmd(a *app) *cobra.Command {
	var (
		fixturePath string
		cfg         = eval.DefaultEvalConfig()
		jsonOut     bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score the active network against an observation stream",
		Long: `Reports the mean log-loss and arg-max accuracy of the network on every
observation whose row exists, plus the largest CPT row-sum drift. The
network is not modified. Exits non-zero when a threshold is not met.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := replay.LoadFixture(fixturePath)
			if err != nil {
				return err
			}
			n, err := a.loadNetwork()
			if err != nil {
				return err
			}
			stream := append(f.Stream(), f.TrajectoryObservations(n)...)
			res := eval.NewEvalHarness(cfg).Run(n, stream)

			w := cmd.OutOrStdout()
			if jsonOut {
				if err := printJSON(w, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(w, "Scored %d observation(s), skipped %d\n", res.Scored, res.Skipped)
				for _, m := range res.Metrics {
					mark := "ok"
					if !m.Pass {
						mark = "FAIL"
					}
					fmt.Fprintf(w, "  %-10s %10.6f  %s\n", m.Name, m.Value, mark)
				}
				fmt.Fprintln(w, res.Reason)
			}
			if !res.Passed {
				return fmt.Errorf("%s", res.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturePath, "observations", "", "observation stream JSON")
	cmd.Flags().Float64Var(&cfg.MaxLogLoss, "max-log-loss", 0, "fail above this mean log-loss (0 disables)")
	cmd.Flags().Float64Var(&cfg.MinAccuracy, "min-accuracy", 0, "fail below this accuracy (0 disables)")
	cmd.Flags().Float64Var(&cfg.MaxRowDrift, "max-row-drift", cfg.MaxRowDrift, "fail when a row sums further than this from 1 (0 disables)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	cmd.MarkFlagRequired("observations")
	return cmd
}

// #endregion eval
