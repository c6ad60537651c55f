package dbn

import (
	"fmt"
	"math"
)

// ColdStartFloor is the probability given to a value the first time it is
// observed in a row, before the moving-average step.
const ColdStartFloor = 1e-6

// Update shifts the row for parents toward observed with an exponential
// moving average, then renormalizes the row.
//
// The variable must have had a table installed, even an empty one. A missing
// row is created. lr must be in (0, 1]; lr near 1 collapses the row onto the
// latest observation, lr near 0 leaves it almost unchanged.
func (n *Network) Update(variable string, parents Tuple, observed string, lr float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	table, ok := n.cpts[variable]
	if !ok {
		return fmt.Errorf("%w: no table for %q", ErrUndefinedCPT, variable)
	}
	if math.IsNaN(lr) || lr <= 0 || lr > 1 {
		return fmt.Errorf("%w: %v not in (0, 1]", ErrInvalidLearningRate, lr)
	}

	c := table.cell(parents)
	if !c.dist.Has(observed) {
		c.dist = append(c.dist, Outcome{Value: observed, P: ColdStartFloor})
	}

	for i := range c.dist {
		if c.dist[i].Value == observed {
			c.dist[i].P = c.dist[i].P*(1-lr) + lr
		} else {
			c.dist[i].P *= 1 - lr
		}
	}

	// A zero total is left as is.
	total := c.dist.Sum()
	if total != 0 {
		for i := range c.dist {
			c.dist[i].P /= total
		}
	}
	return nil
}
