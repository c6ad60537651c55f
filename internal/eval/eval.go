package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/danielpatrickdp/adaptive-dbn/internal/update"
)

// minProb keeps the log-loss finite when the observed value has zero mass.
const minProb = 1e-12

// #region eval-harness
// EvalHarness scores a network's predictions against observations.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run scores n on observations without modifying it. Observations whose
// variable has no table, or whose parent tuple has no row, are skipped and
// counted; they do not affect log-loss or accuracy.
func (h *EvalHarness) Run(n *dbn.Network, observations []update.Observation) EvalResult {
	var (
		res     EvalResult
		nll     float64
		correct int
	)
	for _, obs := range observations {
		dist, ok := lookup(n, obs)
		if !ok {
			res.Skipped++
			continue
		}
		res.Scored++
		nll -= math.Log(math.Max(dist.Prob(obs.Value), minProb))
		if best, ok := dist.ArgMax(); ok && best == obs.Value {
			correct++
		}
	}

	var logLoss, accuracy float64
	if res.Scored > 0 {
		logLoss = nll / float64(res.Scored)
		accuracy = float64(correct) / float64(res.Scored)
	}
	drift := rowDrift(n)

	var failReasons []string
	check := func(name string, value float64, pass bool, reason string) {
		res.Metrics = append(res.Metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	check("log_loss", logLoss,
		h.config.MaxLogLoss == 0 || logLoss <= h.config.MaxLogLoss,
		fmt.Sprintf("log-loss %.4f exceeds %.4f", logLoss, h.config.MaxLogLoss))
	check("accuracy", accuracy,
		h.config.MinAccuracy == 0 || accuracy >= h.config.MinAccuracy,
		fmt.Sprintf("accuracy %.4f below %.4f", accuracy, h.config.MinAccuracy))
	check("row_drift", drift,
		h.config.MaxRowDrift == 0 || drift <= h.config.MaxRowDrift,
		fmt.Sprintf("row sum drift %.2e exceeds %.2e", drift, h.config.MaxRowDrift))

	// coverage is informational
	coverage := 0.0
	if total := res.Scored + res.Skipped; total > 0 {
		coverage = float64(res.Scored) / float64(total)
	}
	res.Metrics = append(res.Metrics, EvalMetric{Name: "coverage", Value: coverage, Pass: true})

	res.Passed = len(failReasons) == 0
	switch len(failReasons) {
	case 0:
		res.Reason = "all checks passed"
	case 1:
		res.Reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	default:
		res.Reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}
	return res
}

// #endregion eval-harness

// #region helpers
func lookup(n *dbn.Network, obs update.Observation) (dbn.Distribution, bool) {
	table, ok := n.CPT(obs.Variable)
	if !ok {
		return nil, false
	}
	return table.Get(obs.Parents)
}

// rowDrift is the largest distance of any row's total from 1. Empty rows
// are ignored.
func rowDrift(n *dbn.Network) float64 {
	var worst float64
	for _, name := range n.TableNames() {
		table, _ := n.CPT(name)
		for _, e := range table.Entries() {
			if len(e.Dist) == 0 {
				continue
			}
			worst = math.Max(worst, math.Abs(e.Dist.Sum()-1))
		}
	}
	return worst
}

// #endregion helpers
