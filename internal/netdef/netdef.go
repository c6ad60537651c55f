// Package netdef reads and writes declarative network definitions.
//
// A definition is YAML (JSON documents parse too) listing the slice
// variables, both edge lists and the CPT rows. Parent tuples in the rows are
// positional: intra-slice parents in edge order, then inter-slice parents.
package netdef

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"gopkg.in/yaml.v3"
)

// #region types
// Definition is the on-disk form of a network.
type Definition struct {
	Name      string    `yaml:"name" json:"name"`
	Strict    bool      `yaml:"strict,omitempty" json:"strict,omitempty"`
	Variables []string  `yaml:"variables" json:"variables"`
	Intra     []EdgeDef `yaml:"intra,omitempty" json:"intra,omitempty"`
	Inter     []EdgeDef `yaml:"inter,omitempty" json:"inter,omitempty"`
	CPTs      []CPTDef  `yaml:"cpts,omitempty" json:"cpts,omitempty"`
}

// EdgeDef is one edge. For inter edges Parent is read at t-1.
type EdgeDef struct {
	Parent string `yaml:"parent" json:"parent"`
	Child  string `yaml:"child" json:"child"`
}

// CPTDef is the full table of one variable.
type CPTDef struct {
	Variable string      `yaml:"variable" json:"variable"`
	Rows     []dbn.Entry `yaml:"rows" json:"rows"`
}

// #endregion types

// #region load
// Load reads a definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse definition %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a YAML or JSON definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}
	return &def, nil
}

// #endregion load

// #region build
// Build assembles a network from the definition. Probabilities must be
// finite in every mode, since stored versions are JSON. In strict mode every
// edge endpoint must be a declared variable and every table must pass
// dbn.Table.Validate for its parent arity.
func (d *Definition) Build() (*dbn.Network, error) {
	n := dbn.New(d.Name)
	for _, v := range d.Variables {
		n.AddVariable(v)
	}

	declared := make(map[string]bool, len(d.Variables))
	for _, v := range d.Variables {
		declared[v] = true
	}
	checkEdge := func(kind string, e EdgeDef) error {
		if !d.Strict {
			return nil
		}
		if !declared[e.Parent] || !declared[e.Child] {
			return fmt.Errorf("%s edge %s -> %s references an undeclared variable", kind, e.Parent, e.Child)
		}
		return nil
	}

	for _, e := range d.Intra {
		if err := checkEdge("intra", e); err != nil {
			return nil, err
		}
		n.AddIntraEdge(e.Parent, e.Child)
	}
	for _, e := range d.Inter {
		if err := checkEdge("inter", e); err != nil {
			return nil, err
		}
		n.AddInterEdge(e.Parent, e.Child)
	}

	for _, c := range d.CPTs {
		if err := checkFinite(c); err != nil {
			return nil, err
		}
		table := dbn.NewTable(c.Rows...)
		if d.Strict {
			if err := table.Validate(len(n.Parents(c.Variable))); err != nil {
				return nil, fmt.Errorf("cpt %s: %w", c.Variable, err)
			}
		}
		n.SetCPT(c.Variable, table)
	}
	return n, nil
}

func checkFinite(c CPTDef) error {
	for _, row := range c.Rows {
		for _, o := range row.Dist {
			if math.IsNaN(o.P) || math.IsInf(o.P, 0) {
				return fmt.Errorf("cpt %s: %w: row %s value %q has probability %v",
					c.Variable, dbn.ErrInvalidTable, row.Parents, o.Value, o.P)
			}
		}
	}
	return nil
}

// #endregion build

// #region export
// FromNetwork captures the current topology and tables of n.
func FromNetwork(n *dbn.Network) *Definition {
	d := &Definition{
		Name:      n.Name,
		Variables: n.Variables(),
	}
	for _, e := range n.IntraEdges() {
		d.Intra = append(d.Intra, EdgeDef{Parent: e.Parent, Child: e.Child})
	}
	for _, e := range n.InterEdges() {
		d.Inter = append(d.Inter, EdgeDef{Parent: e.Parent, Child: e.Child})
	}
	for _, name := range n.TableNames() {
		table, _ := n.CPT(name)
		d.CPTs = append(d.CPTs, CPTDef{Variable: name, Rows: table.Entries()})
	}
	return d
}

// YAML encodes the definition as YAML.
func (d *Definition) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}

// JSON encodes the definition as indented JSON.
func (d *Definition) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// #endregion export
