package dbn

import "sync"

// #region network-struct
// Network is a dynamic Bayesian network template: variables repeated per
// time slice, intra-slice and inter-slice edges, and one CPT per variable.
//
// A Network is safe for concurrent use. Infer and the read accessors return
// copies, so callers never observe a distribution changing under them.
type Network struct {
	Name string

	mu        sync.RWMutex
	variables []string
	known     map[string]struct{}
	intra     []Edge
	inter     []Edge
	cpts      map[string]*Table
	cptOrder  []string
}

// #endregion network-struct

// #region constructor
// New returns an empty network.
func New(name string) *Network {
	return &Network{
		Name:  name,
		known: make(map[string]struct{}),
		cpts:  make(map[string]*Table),
	}
}

// #endregion constructor

// #region topology
// AddVariable appends name to the slice template unless it is already present.
func (n *Network) AddVariable(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.known[name]; ok {
		return
	}
	n.known[name] = struct{}{}
	n.variables = append(n.variables, name)
}

// AddIntraEdge records parent_t -> child_t. No validation is performed and
// duplicates are kept.
func (n *Network) AddIntraEdge(parent, child string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.intra = append(n.intra, Edge{Parent: parent, Child: child})
}

// AddInterEdge records parent_{t-1} -> child_t. No validation is performed
// and duplicates are kept.
func (n *Network) AddInterEdge(parent, child string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inter = append(n.inter, Edge{Parent: parent, Child: child})
}

// Parents returns the parents of child: intra-slice parents in edge order,
// then inter-slice parents in edge order. CPT keys, evidence lookups and
// Update tuples are all positional against this order.
func (n *Network) Parents(child string) []Parent {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parentsLocked(child)
}

func (n *Network) parentsLocked(child string) []Parent {
	var parents []Parent
	for _, e := range n.intra {
		if e.Child == child {
			parents = append(parents, Parent{Name: e.Parent, Offset: 0})
		}
	}
	for _, e := range n.inter {
		if e.Child == child {
			parents = append(parents, Parent{Name: e.Parent, Offset: -1})
		}
	}
	return parents
}

// Variables returns the registered variables in registration order.
func (n *Network) Variables() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.variables...)
}

// IntraEdges returns the intra-slice edges in insertion order.
func (n *Network) IntraEdges() []Edge {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]Edge(nil), n.intra...)
}

// InterEdges returns the inter-slice edges in insertion order.
func (n *Network) InterEdges() []Edge {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]Edge(nil), n.inter...)
}

// #endregion topology

// #region cpt-store
// SetCPT replaces the variable's whole table with a copy of table. Shape and
// probabilities are not checked; see Table.Validate.
func (n *Network) SetCPT(variable string, table *Table) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.cpts[variable]; !ok {
		n.cptOrder = append(n.cptOrder, variable)
	}
	n.cpts[variable] = table.Clone()
}

// TableNames returns the variables that have a table, in the order their
// first table was installed.
func (n *Network) TableNames() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.cptOrder...)
}

// CPT returns a copy of the variable's table.
func (n *Network) CPT(variable string) (*Table, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	t, ok := n.cpts[variable]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// #endregion cpt-store
