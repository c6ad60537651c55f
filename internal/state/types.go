package state

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"github.com/danielpatrickdp/adaptive-dbn/internal/netdef"
)

// #region network-record
// NetworkRecord is one versioned snapshot of a network: topology plus every
// installed CPT at the moment it was committed.
type NetworkRecord struct {
	VersionID   string
	ParentID    string
	Name        string
	Definition  *netdef.Definition
	CreatedAt   time.Time
	MetricsJSON string
}

// Network rebuilds a live network from the snapshot.
func (r NetworkRecord) Network() (*dbn.Network, error) {
	if r.Definition == nil {
		return nil, fmt.Errorf("version %s has no snapshot", r.VersionID)
	}
	return r.Definition.Build()
}

// #endregion network-record

// #region version-with-updates
// VersionSummary pairs a version with the number of learner updates logged
// against it.
type VersionSummary struct {
	NetworkRecord
	Updates int
}

// #endregion version-with-updates
