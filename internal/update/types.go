package update

import "github.com/danielpatrickdp/adaptive-dbn/internal/dbn"

// #region observation
// Observation is one streamed data point for a CPT row: the variable took
// Value while its parents held Parents (positional, intra then inter).
type Observation struct {
	Variable     string
	Parents      dbn.Tuple
	Value        string
	LearningRate float64 // 0 means Config.LearningRate
}

// #endregion observation

// #region decision
// Decision records what the learner did with an observation.
type Decision struct {
	Action string // "commit" | "reject" | "no_op"
	Reason string
}

// #endregion decision

// #region metrics
// Metrics captures the effect of one learner step on its row.
type Metrics struct {
	Shift  float64 // L1 distance between Before and After
	Before dbn.Distribution
	After  dbn.Distribution
	NewRow bool // the parent tuple had no row before this step
}

// #endregion metrics

// #region update-config
// Config holds learner parameters.
type Config struct {
	LearningRate float64 // used when an observation carries none (default 0.1)
}

// DefaultConfig returns the learner defaults.
func DefaultConfig() Config {
	return Config{LearningRate: 0.1}
}

// #endregion update-config

// #region update-result
// Result bundles everything returned by Apply.
type Result struct {
	Observation Observation // with the effective learning rate filled in
	Decision    Decision
	Metrics     Metrics
}

// #endregion update-result
