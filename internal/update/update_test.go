package update

import (
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
)

func priorNetwork(p map[string]float64, order ...string) *dbn.Network {
	n := dbn.New("test")
	n.AddVariable("X")
	var d dbn.Distribution
	for _, v := range order {
		d = append(d, dbn.Outcome{Value: v, P: p[v]})
	}
	n.SetCPT("X", dbn.NewTable(dbn.Entry{Parents: dbn.Tuple{}, Dist: d}))
	return n
}

func TestApplyCommit(t *testing.T) {
	n := priorNetwork(map[string]float64{"a": 0.5, "b": 0.5}, "a", "b")

	res, err := Apply(n, Observation{Variable: "X", Value: "a", LearningRate: 0.5}, DefaultConfig())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Decision.Action != "commit" {
		t.Fatalf("expected commit, got %s (%s)", res.Decision.Action, res.Decision.Reason)
	}
	// a: 0.75, b: 0.25 -> shift 0.25 + 0.25
	if math.Abs(res.Metrics.Shift-0.5) > 1e-9 {
		t.Fatalf("expected shift 0.5, got %v", res.Metrics.Shift)
	}
	if res.Metrics.NewRow {
		t.Error("row existed before the step")
	}
	if res.Metrics.Before.Prob("a") != 0.5 || res.Metrics.After.Prob("a") != 0.75 {
		t.Errorf("unexpected before/after: %+v -> %+v", res.Metrics.Before, res.Metrics.After)
	}
}

func TestApplyUsesConfigLearningRate(t *testing.T) {
	n := priorNetwork(map[string]float64{"a": 0.5, "b": 0.5}, "a", "b")

	res, err := Apply(n, Observation{Variable: "X", Value: "a"}, Config{LearningRate: 1})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Observation.LearningRate != 1 {
		t.Fatalf("expected effective lr 1, got %v", res.Observation.LearningRate)
	}
	if res.Metrics.After.Prob("a") != 1 {
		t.Fatalf("expected collapse with lr=1, got %+v", res.Metrics.After)
	}
}

func TestApplyNoOpWhenSaturated(t *testing.T) {
	n := priorNetwork(map[string]float64{"a": 1}, "a")

	res, err := Apply(n, Observation{Variable: "X", Value: "a", LearningRate: 0.5}, DefaultConfig())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Decision.Action != "no_op" {
		t.Fatalf("expected no_op, got %s", res.Decision.Action)
	}
}

func TestApplyNewRow(t *testing.T) {
	n := priorNetwork(map[string]float64{"a": 1}, "a")

	res, err := Apply(n, Observation{Variable: "X", Parents: dbn.Tuple{"ctx"}, Value: "z", LearningRate: 0.5}, DefaultConfig())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Metrics.NewRow || res.Metrics.Before != nil {
		t.Fatalf("expected a fresh row, got %+v", res.Metrics)
	}
	if res.Metrics.After.Prob("z") != 1 {
		t.Fatalf("single-value row should normalize to 1, got %+v", res.Metrics.After)
	}
}

func TestApplyReject(t *testing.T) {
	n := dbn.New("test")

	res, err := Apply(n, Observation{Variable: "Missing", Value: "a", LearningRate: 0.1}, DefaultConfig())
	if !errors.Is(err, dbn.ErrUndefinedCPT) {
		t.Fatalf("expected ErrUndefinedCPT, got %v", err)
	}
	if res.Decision.Action != "reject" {
		t.Fatalf("expected reject, got %s", res.Decision.Action)
	}

	n2 := priorNetwork(map[string]float64{"a": 1}, "a")
	res, err = Apply(n2, Observation{Variable: "X", Value: "a", LearningRate: 2}, DefaultConfig())
	if !errors.Is(err, dbn.ErrInvalidLearningRate) || res.Decision.Action != "reject" {
		t.Fatalf("expected rejected learning rate, got %v / %s", err, res.Decision.Action)
	}
}
