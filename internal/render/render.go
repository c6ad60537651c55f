// Package render draws a network for people: a text summary and a layered
// Graphviz diagram repeated over time slices. It only reads the network.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
)

const rule = "============================================================"

// #region info
// Info writes the variables with their parents, both edge lists and every
// installed table.
func Info(w io.Writer, n *dbn.Network) error {
	p := &printer{w: w}
	p.printf("%s\nDynamic Bayesian Network: %s\n%s\n", rule, n.Name, rule)

	p.printf("\nNODES:\n")
	for i, v := range n.Variables() {
		parents := n.Parents(v)
		if len(parents) == 0 {
			p.printf("  %d. %s | Root node (no parents)\n", i+1, v)
			continue
		}
		p.printf("  %d. %s | Parents: %s\n", i+1, v, joinParents(parents))
	}

	p.printf("\nINTRA-SLICE EDGES (within time slice):\n")
	intra := n.IntraEdges()
	if len(intra) == 0 {
		p.printf("  None\n")
	}
	for i, e := range intra {
		p.printf("  %d. %s_t -> %s_t\n", i+1, e.Parent, e.Child)
	}

	p.printf("\nINTER-SLICE EDGES (across time slices):\n")
	inter := n.InterEdges()
	if len(inter) == 0 {
		p.printf("  None\n")
	}
	for i, e := range inter {
		p.printf("  %d. %s_{t-1} -> %s_t\n", i+1, e.Parent, e.Child)
	}

	p.printf("\nCONDITIONAL PROBABILITY TABLES:\n")
	for _, v := range n.Variables() {
		table, ok := n.CPT(v)
		if !ok {
			continue
		}
		p.printf("\n  %s:\n", v)
		names := joinParents(n.Parents(v))
		for _, e := range table.Entries() {
			if len(e.Parents) == 0 {
				p.printf("    P(%s) =\n", v)
			} else {
				p.printf("    P(%s | %s = %s) =\n", v, names, e.Parents)
			}
			for _, o := range e.Dist {
				p.printf("      %s: %.3f\n", o.Value, o.P)
			}
		}
	}

	p.printf("\n%s\n", rule)
	return p.err
}

// #endregion info

// #region dot
// DOT writes a Graphviz digraph with one column per time slice. Intra edges
// are solid and drawn in every slice; inter edges are dashed red and drawn
// from slice t-1 to slice t for t >= 1.
func DOT(w io.Writer, n *dbn.Network, slices int) error {
	p := &printer{w: w}
	p.printf("digraph %s {\n", quote(n.Name))
	p.printf("  rankdir=LR;\n")
	p.printf("  labelloc=t;\n  label=%s;\n", quote("Dynamic Bayesian Network: "+n.Name))
	p.printf("  node [shape=ellipse, style=filled, fillcolor=lightblue];\n")

	for i, slice := range n.Unroll(slices) {
		p.printf("  subgraph cluster_t%d {\n", i)
		p.printf("    label=%s;\n", quote(fmt.Sprintf("t = %d", i)))
		for _, k := range slice {
			p.printf("    %s [label=%s];\n", nodeID(k), quote(fmt.Sprintf("%s_{%d}", k.Variable, k.Time)))
		}
		p.printf("  }\n")
	}

	intra := n.IntraEdges()
	inter := n.InterEdges()
	for t := 0; t < slices; t++ {
		for _, e := range intra {
			p.printf("  %s -> %s [style=solid, color=black];\n",
				nodeID(dbn.TimeKey{Variable: e.Parent, Time: t}), nodeID(dbn.TimeKey{Variable: e.Child, Time: t}))
		}
		if t == 0 {
			continue
		}
		for _, e := range inter {
			p.printf("  %s -> %s [style=dashed, color=red];\n",
				nodeID(dbn.TimeKey{Variable: e.Parent, Time: t - 1}), nodeID(dbn.TimeKey{Variable: e.Child, Time: t}))
		}
	}
	p.printf("}\n")
	return p.err
}

// #endregion dot

// #region helpers
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func joinParents(parents []dbn.Parent) string {
	parts := make([]string, len(parents))
	for i, p := range parents {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}

func nodeID(k dbn.TimeKey) string {
	return quote(k.String())
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// #endregion helpers
