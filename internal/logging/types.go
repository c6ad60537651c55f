package logging

import "time"

// #region update-entry
// UpdateEntry is a single row in the update_log table: one learner step
// applied to the network version VersionID was derived from.
type UpdateEntry struct {
	VersionID    string
	Variable     string
	Parents      []string
	Observed     string
	LearningRate float64
	Decision     string // "commit" | "reject" | "no_op"
	Reason       string
	Shift        float64 // L1 distance between the row before and after
	CreatedAt    time.Time
}

// #endregion update-entry
