package dbn

import (
	"fmt"
	"math"
)

// validateTolerance bounds how far a row may drift from summing to 1.
const validateTolerance = 1e-6

// Entry is one row of a conditional probability table.
type Entry struct {
	Parents Tuple        `json:"parents" yaml:"parents"`
	Dist    Distribution `json:"dist" yaml:"dist"`
}

type cell struct {
	parents Tuple
	dist    Distribution
}

// Table is a conditional probability table: parent-value tuple to
// distribution, in insertion order. The zero value is an empty table.
type Table struct {
	order []string
	cells map[string]*cell
}

// NewTable builds a table from rows. A repeated tuple replaces the earlier
// distribution but keeps its position.
func NewTable(entries ...Entry) *Table {
	t := &Table{}
	for _, e := range entries {
		t.Put(e.Parents, e.Dist)
	}
	return t
}

// Put stores a copy of dist under parents. A value listed more than once
// keeps its first position and its last probability.
func (t *Table) Put(parents Tuple, dist Distribution) {
	c := t.cell(parents)
	c.dist = dist.folded()
}

// Get returns a copy of the distribution stored under parents.
func (t *Table) Get(parents Tuple) (Distribution, bool) {
	if t == nil || t.cells == nil {
		return nil, false
	}
	c, ok := t.cells[parents.key()]
	if !ok {
		return nil, false
	}
	return c.dist.Clone(), true
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Entries returns copies of all rows in insertion order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, 0, len(t.order))
	for _, k := range t.order {
		c := t.cells[k]
		out = append(out, Entry{Parents: c.parents.Clone(), Dist: c.dist.Clone()})
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{}
	if t == nil {
		return out
	}
	for _, e := range t.Entries() {
		out.Put(e.Parents, e.Dist)
	}
	return out
}

// Validate checks every row for tuple arity, non-negative probabilities
// and a total of 1. SetCPT never calls it; it exists for callers that want
// strict tables.
func (t *Table) Validate(arity int) error {
	for _, e := range t.Entries() {
		if len(e.Parents) != arity {
			return fmt.Errorf("%w: row %s has %d parent values, want %d", ErrInvalidTable, e.Parents, len(e.Parents), arity)
		}
		for _, o := range e.Dist {
			if math.IsNaN(o.P) || o.P < 0 {
				return fmt.Errorf("%w: row %s value %q has probability %v", ErrInvalidTable, e.Parents, o.Value, o.P)
			}
		}
		if sum := e.Dist.Sum(); math.Abs(sum-1) > validateTolerance {
			return fmt.Errorf("%w: row %s sums to %.6f", ErrInvalidTable, e.Parents, sum)
		}
	}
	return nil
}

// cell returns the row for parents, creating an empty one if needed.
func (t *Table) cell(parents Tuple) *cell {
	if t.cells == nil {
		t.cells = make(map[string]*cell)
	}
	k := parents.key()
	c, ok := t.cells[k]
	if !ok {
		c = &cell{parents: parents.Clone(), dist: Distribution{}}
		t.cells[k] = c
		t.order = append(t.order, k)
	}
	return c
}

func (t *Table) lookup(parents Tuple) (*cell, bool) {
	if t.cells == nil {
		return nil, false
	}
	c, ok := t.cells[parents.key()]
	return c, ok
}
