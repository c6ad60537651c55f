package update

import (
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
)

// #region apply
// Apply feeds one observation to the network's online learner and reports
// how far the row moved.
//
// Observations the learner refuses (no table, bad learning rate) come back
// as a "reject" decision together with the error; the network is untouched.
// A step that leaves the row numerically unchanged is a "no_op".
func Apply(n *dbn.Network, obs Observation, cfg Config) (Result, error) {
	if obs.LearningRate == 0 {
		obs.LearningRate = cfg.LearningRate
	}
	res := Result{Observation: obs}

	before, hadRow := row(n, obs.Variable, obs.Parents)

	if err := n.Update(obs.Variable, obs.Parents, obs.Value, obs.LearningRate); err != nil {
		res.Decision = Decision{Action: "reject", Reason: rejectReason(err)}
		return res, err
	}

	after, _ := row(n, obs.Variable, obs.Parents)
	shift := l1(before, after)
	res.Metrics = Metrics{
		Shift:  shift,
		Before: before,
		After:  after,
		NewRow: !hadRow,
	}

	if shift == 0 {
		res.Decision = Decision{Action: "no_op", Reason: "row unchanged"}
		return res, nil
	}
	res.Decision = Decision{
		Action: "commit",
		Reason: fmt.Sprintf("%s%s -> %s, shift %.6f", obs.Variable, obs.Parents, obs.Value, shift),
	}
	return res, nil
}

// #endregion apply

// #region helpers
func row(n *dbn.Network, variable string, parents dbn.Tuple) (dbn.Distribution, bool) {
	table, ok := n.CPT(variable)
	if !ok {
		return nil, false
	}
	return table.Get(parents)
}

// l1 sums |after - before| over the union of values.
func l1(before, after dbn.Distribution) float64 {
	var total float64
	for _, o := range after {
		total += math.Abs(o.P - before.Prob(o.Value))
	}
	for _, o := range before {
		if !after.Has(o.Value) {
			total += math.Abs(o.P)
		}
	}
	return total
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, dbn.ErrUndefinedCPT):
		return "no table installed"
	case errors.Is(err, dbn.ErrInvalidLearningRate):
		return "learning rate out of range"
	default:
		return err.Error()
	}
}

// #endregion helpers
