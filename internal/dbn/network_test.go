package dbn

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// stockNetwork mirrors the two-variable market example: sentiment is a root,
// price move depends on sentiment (intra) and on itself (inter).
func stockNetwork(t *testing.T) *Network {
	t.Helper()
	n := New("Stock-DBN")
	n.AddVariable("MarketSentiment")
	n.AddVariable("PriceMove")
	n.AddInterEdge("PriceMove", "PriceMove")
	n.AddIntraEdge("MarketSentiment", "PriceMove")

	n.SetCPT("MarketSentiment", NewTable(Entry{
		Parents: Tuple{},
		Dist:    Distribution{{"Bullish", 0.6}, {"Bearish", 0.4}},
	}))
	n.SetCPT("PriceMove", NewTable(
		Entry{Tuple{"Bullish", "Increase"}, Distribution{{"Increase", 0.8}, {"Decrease", 0.2}}},
		Entry{Tuple{"Bearish", "Increase"}, Distribution{{"Increase", 0.55}, {"Decrease", 0.45}}},
		Entry{Tuple{"Bullish", "Decrease"}, Distribution{{"Increase", 0.6}, {"Decrease", 0.4}}},
		Entry{Tuple{"Bearish", "Decrease"}, Distribution{{"Increase", 0.3}, {"Decrease", 0.7}}},
	))
	return n
}

// #region test-registration
func TestAddVariableIdempotent(t *testing.T) {
	n := New("test")
	n.AddVariable("X")
	n.AddVariable("Y")
	n.AddVariable("X")

	if diff := cmp.Diff([]string{"X", "Y"}, n.Variables()); diff != "" {
		t.Fatalf("variables mismatch (-want +got):\n%s", diff)
	}
}

func TestEdgesAllowDuplicates(t *testing.T) {
	n := New("test")
	n.AddIntraEdge("A", "B")
	n.AddIntraEdge("A", "B")
	n.AddInterEdge("Ghost", "B") // neither endpoint registered

	if got := len(n.IntraEdges()); got != 2 {
		t.Fatalf("expected 2 intra edges, got %d", got)
	}
	if got := n.InterEdges(); len(got) != 1 || got[0].Parent != "Ghost" {
		t.Fatalf("unexpected inter edges: %+v", got)
	}
	if got := len(n.Parents("B")); got != 3 {
		t.Fatalf("expected duplicate edges to yield 3 parents, got %d", got)
	}
}

// #endregion test-registration

// #region test-parents
func TestParentsIntraBeforeInter(t *testing.T) {
	// Inter edge registered first; intra must still come first.
	n := New("test")
	n.AddInterEdge("B", "C")
	n.AddIntraEdge("A", "C")

	want := []Parent{{Name: "A", Offset: 0}, {Name: "B", Offset: -1}}
	if diff := cmp.Diff(want, n.Parents("C")); diff != "" {
		t.Fatalf("parents mismatch (-want +got):\n%s", diff)
	}
}

func TestParentsInsertionOrderWithinKind(t *testing.T) {
	n := New("test")
	n.AddIntraEdge("Z", "C")
	n.AddIntraEdge("A", "C")
	n.AddInterEdge("Q", "C")
	n.AddInterEdge("B", "C")

	want := []Parent{{"Z", 0}, {"A", 0}, {"Q", -1}, {"B", -1}}
	if diff := cmp.Diff(want, n.Parents("C")); diff != "" {
		t.Fatalf("parents mismatch (-want +got):\n%s", diff)
	}
}

func TestParentsOfRootIsEmpty(t *testing.T) {
	n := stockNetwork(t)
	if got := n.Parents("MarketSentiment"); len(got) != 0 {
		t.Fatalf("expected no parents, got %+v", got)
	}
}

// #endregion test-parents

// #region test-cpt-store
func TestSetCPTReplacesWholesale(t *testing.T) {
	n := stockNetwork(t)
	n.SetCPT("PriceMove", NewTable(Entry{Tuple{"Bullish", "Increase"}, Distribution{{"Increase", 1}}}))

	table, ok := n.CPT("PriceMove")
	if !ok {
		t.Fatal("expected table")
	}
	if table.Len() != 1 {
		t.Fatalf("expected old rows to be dropped, got %d rows", table.Len())
	}
}

func TestSetCPTAcceptsMalformedTables(t *testing.T) {
	n := New("test")
	n.AddVariable("X")
	n.SetCPT("X", NewTable(Entry{Tuple{}, Distribution{{"a", -3}, {"b", 7}}}))

	d, err := n.Infer("X", 0, nil)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if d.Prob("a") != -3 || d.Prob("b") != 7 {
		t.Fatalf("expected table to be stored as given, got %+v", d)
	}
}

func TestSetCPTCopiesCallerTable(t *testing.T) {
	n := New("test")
	table := NewTable(Entry{Tuple{}, Distribution{{"a", 1}}})
	n.SetCPT("X", table)
	table.Put(Tuple{}, Distribution{{"b", 1}})

	d, err := n.Infer("X", 0, nil)
	if err != nil {
		t.Fatalf("infer: %v", err)
	}
	if !d.Has("a") || d.Has("b") {
		t.Fatalf("caller mutation leaked into store: %+v", d)
	}
}

// #endregion test-cpt-store

// #region test-unroll
func TestUnrollShape(t *testing.T) {
	n := New("test")
	n.AddVariable("X")
	n.AddVariable("Y")

	want := [][]TimeKey{
		{{"X", 0}, {"Y", 0}},
		{{"X", 1}, {"Y", 1}},
		{{"X", 2}, {"Y", 2}},
	}
	if diff := cmp.Diff(want, n.Unroll(3)); diff != "" {
		t.Fatalf("unroll mismatch (-want +got):\n%s", diff)
	}
}

func TestUnrollEmptySpan(t *testing.T) {
	n := stockNetwork(t)
	if got := n.Unroll(0); len(got) != 0 {
		t.Fatalf("expected no slices, got %d", len(got))
	}
	if got := n.Unroll(-2); len(got) != 0 {
		t.Fatalf("expected no slices for negative span, got %d", len(got))
	}
}

// #endregion test-unroll
