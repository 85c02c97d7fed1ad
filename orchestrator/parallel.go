package orchestrator

import "github.com/mpst-workbench/core/cfg"

// BranchState is one fork branch's resumption point.
type BranchState struct {
	Start     cfg.NodeID
	Current   cfg.NodeID
	Completed bool
}

// ParallelState tracks one active fork/join pair. Branches execute in
// deterministic round-robin order by index, one event per Step.
type ParallelState struct {
	ParallelID string
	Join       cfg.NodeID
	Branches   []*BranchState
	Active     int // index into Branches currently receiving steps
}

// nextIncomplete returns the next branch index after from (wrapping) whose
// Completed is false, or -1 if every branch is complete.
func (p *ParallelState) nextIncomplete(from int) int {
	n := len(p.Branches)
	for i := 1; i <= n; i++ {
		idx := (from + i) % n
		if !p.Branches[idx].Completed {
			return idx
		}
	}
	return -1
}

// allCompleted reports whether every branch has reached the join.
func (p *ParallelState) allCompleted() bool {
	for _, b := range p.Branches {
		if !b.Completed {
			return false
		}
	}
	return true
}
