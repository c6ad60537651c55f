package dbn

import (
	"fmt"
	"strings"
)

// Infer returns P(variable_t | parents) for the parent values found in ev.
//
// This is a single-cell lookup. It never sums over unobserved parents, so
// every parent must be present in ev at t+offset. Root variables return
// their () prior regardless of t and ev.
func (n *Network) Infer(variable string, t int, ev Evidence) (Distribution, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	table, ok := n.cpts[variable]
	if !ok {
		return nil, fmt.Errorf("%w: no table for %q", ErrUndefinedCPT, variable)
	}

	parents := n.parentsLocked(variable)
	if len(parents) == 0 {
		c, ok := table.lookup(Tuple{})
		if !ok {
			return nil, fmt.Errorf("%w: root %q has no () prior", ErrUndefinedCPTEntry, variable)
		}
		return c.dist.Clone(), nil
	}

	values := make(Tuple, 0, len(parents))
	for _, p := range parents {
		key := TimeKey{Variable: p.Name, Time: t + p.Offset}
		v, ok := ev[key]
		if !ok {
			return nil, fmt.Errorf("%w: parent %q at time %d", ErrMissingEvidence, p.Name, key.Time)
		}
		values = append(values, v)
	}

	c, ok := table.lookup(values)
	if !ok {
		return nil, fmt.Errorf("%w: %q with parent values %s [%s]",
			ErrUndefinedCPTEntry, variable, values, describeAssignment(parents, values))
	}
	return c.dist.Clone(), nil
}

// describeAssignment pairs parent names with values, e.g. "A(t+0)=x, B(t-1)=y".
func describeAssignment(parents []Parent, values Tuple) string {
	parts := make([]string, len(parents))
	for i, p := range parents {
		parts[i] = p.String() + "=" + values[i]
	}
	return strings.Join(parts, ", ")
}
