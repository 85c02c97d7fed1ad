package orchestrator

import (
	"fmt"

	"github.com/mpst-workbench/core/cfg"
)

// Diff reports the fields that differ between s and other, one
// human-readable entry per divergence. Rather than hashing the whole
// snapshot and raising a single mismatch error on divergence, this compares
// each field of the (fully structured, not opaque-blob) snapshot directly
// and names every field that diverged, which is more useful to a human than
// a single yes/no verdict. Choice.Pending, each parallel branch's Start and
// the parallel's Join, and the contents of individual call-stack frames are
// not compared, so an empty result does not rule out differences there.
func (s Snapshot) Diff(other Snapshot) []string {
	var diffs []string

	if s.CurrentNode != other.CurrentNode {
		diffs = append(diffs, fmt.Sprintf("CurrentNode: %s != %s", s.CurrentNode, other.CurrentNode))
	}
	if s.StepCount != other.StepCount {
		diffs = append(diffs, fmt.Sprintf("StepCount: %d != %d", s.StepCount, other.StepCount))
	}
	if s.Completed != other.Completed {
		diffs = append(diffs, fmt.Sprintf("Completed: %t != %t", s.Completed, other.Completed))
	}
	if s.ReachedMaxSteps != other.ReachedMaxSteps {
		diffs = append(diffs, fmt.Sprintf("ReachedMaxSteps: %t != %t", s.ReachedMaxSteps, other.ReachedMaxSteps))
	}

	if d := diffNodeSlices("VisitedNodes", s.VisitedNodes, other.VisitedNodes); d != "" {
		diffs = append(diffs, d)
	}

	if s.Choice.NodeID != other.Choice.NodeID {
		diffs = append(diffs, fmt.Sprintf("Choice.NodeID: %s != %s", s.Choice.NodeID, other.Choice.NodeID))
	}
	if s.Choice.Selected != other.Choice.Selected {
		diffs = append(diffs, fmt.Sprintf("Choice.Selected: %d != %d", s.Choice.Selected, other.Choice.Selected))
	}

	if len(s.Parallels) != len(other.Parallels) {
		diffs = append(diffs, fmt.Sprintf("len(Parallels): %d != %d", len(s.Parallels), len(other.Parallels)))
	} else {
		for i := range s.Parallels {
			diffs = append(diffs, diffParallel(i, s.Parallels[i], other.Parallels[i])...)
		}
	}

	if s.CallStack.CurrentID != other.CallStack.CurrentID {
		diffs = append(diffs, fmt.Sprintf("CallStack.CurrentID: %q != %q", s.CallStack.CurrentID, other.CallStack.CurrentID))
	}
	if s.CallStack.Depth != other.CallStack.Depth {
		diffs = append(diffs, fmt.Sprintf("CallStack.Depth: %d != %d", s.CallStack.Depth, other.CallStack.Depth))
	}
	if s.CallStack.TotalSteps != other.CallStack.TotalSteps {
		diffs = append(diffs, fmt.Sprintf("CallStack.TotalSteps: %d != %d", s.CallStack.TotalSteps, other.CallStack.TotalSteps))
	}

	return diffs
}

func diffNodeSlices(field string, a, b []cfg.NodeID) string {
	if len(a) != len(b) {
		return fmt.Sprintf("len(%s): %d != %d", field, len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			return fmt.Sprintf("%s[%d]: %s != %s", field, i, a[i], b[i])
		}
	}
	return ""
}

func diffParallel(i int, a, b *ParallelState) []string {
	var diffs []string
	if a.ParallelID != b.ParallelID {
		diffs = append(diffs, fmt.Sprintf("Parallels[%d].ParallelID: %s != %s", i, a.ParallelID, b.ParallelID))
	}
	if a.Active != b.Active {
		diffs = append(diffs, fmt.Sprintf("Parallels[%d].Active: %d != %d", i, a.Active, b.Active))
	}
	if len(a.Branches) != len(b.Branches) {
		diffs = append(diffs, fmt.Sprintf("Parallels[%d]: len(Branches) %d != %d", i, len(a.Branches), len(b.Branches)))
		return diffs
	}
	for j := range a.Branches {
		if a.Branches[j].Current != b.Branches[j].Current || a.Branches[j].Completed != b.Branches[j].Completed {
			diffs = append(diffs, fmt.Sprintf("Parallels[%d].Branches[%d]: current=%s/%s completed=%t/%t",
				i, j, a.Branches[j].Current, b.Branches[j].Current, a.Branches[j].Completed, b.Branches[j].Completed))
		}
	}
	return diffs
}
