package replay

import (
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
)

// ErrNoSteps is returned by Forecast when asked for fewer than one step.
var ErrNoSteps = errors.New("forecast needs at least one step")

// Prediction is the inferred distribution of one variable at one step and
// the value chosen from it.
type Prediction struct {
	Variable string
	Dist     dbn.Distribution
	Choice   string
	Observed bool // value came from evidence, Dist is nil
}

// Step holds the predictions for every variable at one time index, in
// registration order.
type Step struct {
	Time        int
	Predictions []Prediction
}

// Forecast rolls the network forward from start for steps time indices.
// At each step every variable without evidence is inferred and its most
// likely value is written back as evidence, so later variables and later
// steps condition on it. Variables must be registered after their intra
// parents. The caller's evidence map is not modified; the filled-in copy is
// returned.
func Forecast(n *dbn.Network, ev dbn.Evidence, start, steps int) ([]Step, dbn.Evidence, error) {
	if steps < 1 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrNoSteps, steps)
	}
	filled := make(dbn.Evidence, len(ev))
	for k, v := range ev {
		filled[k] = v
	}

	variables := n.Variables()
	out := make([]Step, 0, steps)
	for t := start; t < start+steps; t++ {
		step := Step{Time: t}
		for _, v := range variables {
			key := dbn.TimeKey{Variable: v, Time: t}
			if value, ok := filled[key]; ok {
				step.Predictions = append(step.Predictions, Prediction{Variable: v, Choice: value, Observed: true})
				continue
			}
			dist, err := n.Infer(v, t, filled)
			if err != nil {
				return out, filled, fmt.Errorf("forecast %s: %w", key, err)
			}
			choice, ok := dist.ArgMax()
			if !ok {
				return out, filled, fmt.Errorf("forecast %s: empty distribution", key)
			}
			filled[key] = choice
			step.Predictions = append(step.Predictions, Prediction{Variable: v, Dist: dist, Choice: choice})
		}
		out = append(out, step)
	}
	return out, filled, nil
}
