package eval

// #region eval-config
// EvalConfig holds the thresholds a network must meet on an observation
// stream. Zero disables a threshold.
type EvalConfig struct {
	MaxLogLoss  float64 // mean -ln P(observed | parents)
	MinAccuracy float64 // fraction where the arg-max equals the observed value
	MaxRowDrift float64 // largest |sum - 1| over every CPT row
}

// DefaultEvalConfig returns thresholds that only catch broken tables.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxRowDrift: 1e-6,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of one evaluation run.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
	Scored  int          `json:"scored"`  // observations with a defined row
	Skipped int          `json:"skipped"` // no table or no row for the parent tuple
}

// Metric returns the named metric value, or 0 when absent.
func (r EvalResult) Metric(name string) float64 {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m.Value
		}
	}
	return 0
}

// #endregion eval-result
