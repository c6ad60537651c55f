package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/danielpatrickdp/adaptive-dbn/internal/update"
)

// #region fixture-types

// Fixture is the top-level JSON structure for an observation stream.
type Fixture struct {
	Description  string               `json:"description"`
	LearningRate float64              `json:"learning_rate"`
	Observations []FixtureObservation `json:"observations"`
	// Trajectory holds fully observed slices, index = time. Each slice is
	// turned into observations for every variable whose parents it covers.
	Trajectory      []map[string]string     `json:"trajectory,omitempty"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results,omitempty"`
}

// FixtureObservation mirrors update.Observation with JSON tags.
type FixtureObservation struct {
	Variable     string   `json:"variable"`
	Parents      []string `json:"parents"`
	Value        string   `json:"value"`
	LearningRate float64  `json:"lr,omitempty"`
}

// FixtureExpectedResult captures the expected action per observation index.
type FixtureExpectedResult struct {
	Index  int    `json:"index"`
	Action string `json:"action"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToObservation converts a FixtureObservation to a domain Observation.
func (fo *FixtureObservation) ToObservation() update.Observation {
	return update.Observation{
		Variable:     fo.Variable,
		Parents:      dbn.Tuple(fo.Parents),
		Value:        fo.Value,
		LearningRate: fo.LearningRate,
	}
}

// Config returns the learner config for this fixture, falling back to the
// defaults when no learning rate is set.
func (f *Fixture) Config() update.Config {
	cfg := update.DefaultConfig()
	if f.LearningRate != 0 {
		cfg.LearningRate = f.LearningRate
	}
	return cfg
}

// Stream converts every fixture observation.
func (f *Fixture) Stream() []update.Observation {
	out := make([]update.Observation, len(f.Observations))
	for i := range f.Observations {
		out[i] = f.Observations[i].ToObservation()
	}
	return out
}

// TrajectoryObservations expands the trajectory against n's topology.
func (f *Fixture) TrajectoryObservations(n *dbn.Network) []update.Observation {
	ev := make(dbn.Evidence)
	for t, slice := range f.Trajectory {
		for v, value := range slice {
			ev[dbn.TimeKey{Variable: v, Time: t}] = value
		}
	}
	var out []update.Observation
	for t := range f.Trajectory {
		out = append(out, Observe(n, ev, t)...)
	}
	return out
}

// Mismatches compares results against the fixture's expectations and
// returns one message per disagreement.
func (f *Fixture) Mismatches(results []ReplayResult) []string {
	var out []string
	for _, exp := range f.ExpectedResults {
		if exp.Index < 0 || exp.Index >= len(results) {
			out = append(out, fmt.Sprintf("observation %d: no result", exp.Index))
			continue
		}
		if got := results[exp.Index].Action; got != exp.Action {
			out = append(out, fmt.Sprintf("observation %d: expected %s, got %s", exp.Index, exp.Action, got))
		}
	}
	return out
}

// #endregion fixture-loader
