package dbn

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// #region errors
var (
	// ErrUndefinedCPT is returned when a variable has never had a table installed.
	ErrUndefinedCPT = errors.New("undefined cpt")
	// ErrMissingEvidence is returned when a parent value is absent at the resolved time index.
	ErrMissingEvidence = errors.New("missing evidence")
	// ErrUndefinedCPTEntry is returned when the assembled parent tuple has no row in the table.
	ErrUndefinedCPTEntry = errors.New("undefined cpt entry")
	// ErrInvalidLearningRate is returned by Update when lr is outside (0, 1].
	ErrInvalidLearningRate = errors.New("invalid learning rate")
	// ErrInvalidTable is returned by Table.Validate.
	ErrInvalidTable = errors.New("invalid cpt")
)

// #endregion errors

// #region keys
// TimeKey identifies a variable instantiated at one time index.
type TimeKey struct {
	Variable string
	Time     int
}

func (k TimeKey) String() string {
	return fmt.Sprintf("%s_%d", k.Variable, k.Time)
}

// Evidence maps observed (variable, time) pairs to values.
type Evidence map[TimeKey]string

// Tuple is a positional parent-value tuple. The empty tuple keys a root prior.
type Tuple []string

// key encodes the tuple as a map key. Quoting keeps ("a,b") and ("a", "b") distinct.
func (t Tuple) key() string {
	if len(t) == 0 {
		return ""
	}
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = strconv.Quote(v)
	}
	return strings.Join(parts, ",")
}

func (t Tuple) String() string {
	return "(" + strings.Join(t, ", ") + ")"
}

// Clone returns a copy of the tuple.
func (t Tuple) Clone() Tuple {
	if t == nil {
		return nil
	}
	out := make(Tuple, len(t))
	copy(out, t)
	return out
}

// #endregion keys

// #region topology-types
// Parent is a resolved parent reference. Offset is 0 for intra-slice
// parents and -1 for inter-slice parents.
type Parent struct {
	Name   string
	Offset int
}

func (p Parent) String() string {
	return fmt.Sprintf("%s(t%+d)", p.Name, p.Offset)
}

// Edge is a directed dependency from Parent to Child.
type Edge struct {
	Parent string
	Child  string
}

// #endregion topology-types

// #region distribution
// Outcome is one value of a variable and its probability.
type Outcome struct {
	Value string  `json:"value" yaml:"value"`
	P     float64 `json:"p" yaml:"p"`
}

// Distribution is an insertion-ordered mapping from value to probability.
type Distribution []Outcome

// Prob returns the probability of v, or 0 if v is absent.
func (d Distribution) Prob(v string) float64 {
	if i := d.index(v); i >= 0 {
		return d[i].P
	}
	return 0
}

// Has reports whether v is present in the distribution.
func (d Distribution) Has(v string) bool {
	return d.index(v) >= 0
}

// Sum returns the total probability mass.
func (d Distribution) Sum() float64 {
	var total float64
	for _, o := range d {
		total += o.P
	}
	return total
}

// ArgMax returns the most likely value. Ties go to the earliest value.
// ok is false for an empty distribution.
func (d Distribution) ArgMax() (value string, ok bool) {
	best := -1
	for i, o := range d {
		if best < 0 || o.P > d[best].P {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return d[best].Value, true
}

// Clone returns an independent copy.
func (d Distribution) Clone() Distribution {
	if d == nil {
		return nil
	}
	out := make(Distribution, len(d))
	copy(out, d)
	return out
}

// folded returns a copy with one outcome per value.
func (d Distribution) folded() Distribution {
	if d == nil {
		return nil
	}
	out := make(Distribution, 0, len(d))
	for _, o := range d {
		if i := out.index(o.Value); i >= 0 {
			out[i].P = o.P
			continue
		}
		out = append(out, o)
	}
	return out
}

func (d Distribution) index(v string) int {
	for i, o := range d {
		if o.Value == v {
			return i
		}
	}
	return -1
}

// #endregion distribution
