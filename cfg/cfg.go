// Package cfg implements the control-flow graph model for a global
// multiparty session-type protocol and the builder contract
// that constructs one while enforcing every structural invariant. Nodes
// live in an arena keyed by stable string ids rather than as
// pointer-linked structures, so that `continue` back-edges are ordinary
// map lookups instead of reference cycles.
package cfg

import "github.com/mpst-workbench/core/trace"

// CFG is one verified (or verifier-input) control-flow graph belonging to a
// single protocol declaration.
//
// A CFG is immutable once returned by Builder.Build: nothing in this
// package mutates a *CFG after construction, and downstream packages
// (verify, orchestrator, cfsm, project, registry) must not either. That
// immutability is what lets `reset()` in the simulators return to the
// initial configuration without rebuilding.
type CFG struct {
	ProtocolName string
	Roles        []trace.Role // declared roles, in declaration order

	nodes map[NodeID]*Node
	order []NodeID // deterministic iteration order, independent of map ranging

	outgoing map[NodeID][]Edge
	incoming map[NodeID][]Edge

	initial  NodeID
	dynamic  map[trace.Role]bool // undeclared roles seen in actions or via MarkDynamicRole
}

// Node looks up a node by id.
func (c *CFG) Node(id NodeID) (*Node, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// MustNode looks up a node by id, panicking if absent. Reserved for
// internal callers that have already validated the id came from this CFG;
// external callers should use Node and handle the bool.
func (c *CFG) MustNode(id NodeID) *Node {
	n, ok := c.nodes[id]
	if !ok {
		panic("cfg: unknown node id " + string(id))
	}
	return n
}

// Nodes returns every node in stable, deterministic order.
func (c *CFG) Nodes() []*Node {
	out := make([]*Node, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.nodes[id])
	}
	return out
}

// Initial returns the id of the unique initial node.
func (c *CFG) Initial() NodeID {
	return c.initial
}

// Out returns the outgoing edges of id, in the order they were added.
func (c *CFG) Out(id NodeID) []Edge {
	return c.outgoing[id]
}

// In returns the incoming edges of id, in the order they were added.
func (c *CFG) In(id NodeID) []Edge {
	return c.incoming[id]
}

// IsDynamicRole reports whether name is not declared in Roles but takes
// part in some action (of any kind, e.g. a create_participants target or a
// message peer) or was passed to Builder.MarkDynamicRole. Consumed by
// check_choice_mergeability.
func (c *CFG) IsDynamicRole(name trace.Role) bool {
	return c.dynamic[name]
}

// RecursiveNode returns the id of the recursive node carrying label, if any
// is in the CFG.
func (c *CFG) RecursiveNode(label string) (NodeID, bool) {
	for _, id := range c.order {
		n := c.nodes[id]
		if n.Kind == NodeRecursive && n.Label == label {
			return id, true
		}
	}
	return "", false
}
