package replay

import (
	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/danielpatrickdp/adaptive-dbn/internal/update"
)

// #region types
// ReplayResult captures the outcome of feeding one observation to the learner.
type ReplayResult struct {
	Index       int
	Observation update.Observation
	Action      string // "commit" | "reject" | "no_op"
	Reason      string
	Metrics     update.Metrics
	Err         error
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalObservations int `json:"total_observations"`
	Commits           int `json:"commits"`
	Rejects           int `json:"rejects"`
	NoOps             int `json:"no_ops"`
}

// #endregion types

// #region replay
// Replay applies each observation to n in order. Rejected observations are
// recorded and skipped; they never stop the run.
func Replay(n *dbn.Network, observations []update.Observation, cfg update.Config) []ReplayResult {
	results := make([]ReplayResult, 0, len(observations))
	for i, obs := range observations {
		res, err := update.Apply(n, obs, cfg)
		results = append(results, ReplayResult{
			Index:       i,
			Observation: res.Observation,
			Action:      res.Decision.Action,
			Reason:      res.Decision.Reason,
			Metrics:     res.Metrics,
			Err:         err,
		})
	}
	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalObservations: len(results)}
	for _, r := range results {
		switch r.Action {
		case "commit":
			s.Commits++
		case "reject":
			s.Rejects++
		case "no_op":
			s.NoOps++
		}
	}
	return s
}

// #endregion replay

// #region observe
// Observe turns a fully observed slice into learner observations: for every
// variable with a table whose own value at t and whose parent values are
// all present in ev, it assembles the positional parent tuple. Variables
// missing any of those are skipped, which is the normal case for
// inter-slice parents at t=0.
func Observe(n *dbn.Network, ev dbn.Evidence, t int) []update.Observation {
	var out []update.Observation
	for _, v := range n.TableNames() {
		value, ok := ev[dbn.TimeKey{Variable: v, Time: t}]
		if !ok {
			continue
		}
		parents := n.Parents(v)
		tuple := make(dbn.Tuple, 0, len(parents))
		for _, p := range parents {
			pv, ok := ev[dbn.TimeKey{Variable: p.Name, Time: t + p.Offset}]
			if !ok {
				break
			}
			tuple = append(tuple, pv)
		}
		if len(tuple) != len(parents) {
			continue
		}
		out = append(out, update.Observation{Variable: v, Parents: tuple, Value: value})
	}
	return out
}

// #endregion observe
