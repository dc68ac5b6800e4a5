package search

import (
	"github.com/poiesic/attestor/core"
)

// Monitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps and results.
type Monitor interface {
	Start(query string)
	AfterLane(lane core.Lane, hits []core.LaneHit, err error)
	AfterMerge(candidates []*core.Candidate)
	Finish(result *Result)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                   {}
func (n *noopMonitor) AfterLane(_ core.Lane, _ []core.LaneHit, _ error) {}
func (n *noopMonitor) AfterMerge(_ []*core.Candidate)                   {}
func (n *noopMonitor) Finish(_ *Result)                                 {}
