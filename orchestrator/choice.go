package orchestrator

import (
	"github.com/mpst-workbench/core/cfg"
	"github.com/mpst-workbench/core/trace"
)

// ChoicePreview describes one outgoing branch of a pending choice, enough
// for a caller to decide which index to select.
type ChoicePreview struct {
	Index          int
	Label          string
	FirstNode      cfg.NodeID
	Description    string
	Roles          []trace.Role
	EstimatedSteps int
}

// ChoiceState tracks a branch node awaiting resolution under the manual
// strategy. Selected is always -1: Choose discards the ChoiceState rather
// than recording the index in it, and auto strategies never create one.
type ChoiceState struct {
	NodeID   cfg.NodeID
	Pending  []ChoicePreview
	Selected int
}

// previewBranches walks every outgoing branch edge of n, building a bounded
// preview of each. Preview traversal follows sequence edges up to limit
// steps, stopping early at a branch, fork, or recursive node.
func previewBranches(c *cfg.CFG, n *cfg.Node, limit int) []ChoicePreview {
	var out []ChoicePreview
	idx := 0
	for _, e := range c.Out(n.ID) {
		if e.Kind != cfg.EdgeBranch {
			continue
		}
		roles := map[trace.Role]bool{}
		description := ""
		steps := 0
		id := e.To
		for i := 0; i < limit; i++ {
			cur := c.MustNode(id)
			if cur.Kind == cfg.NodeBranch || cur.Kind == cfg.NodeFork || cur.Kind == cfg.NodeRecursive {
				break
			}
			if cur.Kind == cfg.NodeAction {
				steps++
				for _, r := range cur.Action.Participants() {
					roles[r] = true
				}
				if description == "" {
					description = string(cur.Action.Label)
				}
			}
			out2 := c.Out(id)
			if len(out2) == 0 {
				break
			}
			id = out2[0].To
		}
		var roleList []trace.Role
		for r := range roles {
			roleList = append(roleList, r)
		}
		out = append(out, ChoicePreview{
			Index: idx, Label: e.Label, FirstNode: e.To,
			Description: description, Roles: roleList, EstimatedSteps: steps,
		})
		idx++
	}
	return out
}
