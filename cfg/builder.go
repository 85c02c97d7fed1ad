package cfg

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/mpst-workbench/core/trace"
)

// Builder assembles a CFG node by node and validates every structural
// invariant at Build time. It is the concrete realization of the "builder
// contract" treated elsewhere as an external collaborator: downstream
// packages never see an unvalidated CFG, because Builder.Build is the
// only producer of *CFG values in this module.
//
// Builder is not safe for concurrent use; build one CFG per goroutine.
type Builder struct {
	protocolName string
	roles        []trace.Role
	declared     map[trace.Role]bool

	nodes    map[NodeID]*Node
	order    []NodeID
	outgoing map[NodeID][]Edge
	incoming map[NodeID][]Edge

	initial    NodeID
	initialSet bool
	counter    int

	dynamic map[trace.Role]bool

	err *multierror.Error
}

// NewBuilder starts a builder for protocolName with the given declared
// roles ("roles (ordered sequence of declared roles; uniqueness
// invariant)").
func NewBuilder(protocolName string, roles []trace.Role) *Builder {
	b := &Builder{
		protocolName: protocolName,
		roles:        append([]trace.Role(nil), roles...),
		declared:     make(map[trace.Role]bool, len(roles)),
		nodes:        make(map[NodeID]*Node),
		outgoing:     make(map[NodeID][]Edge),
		incoming:     make(map[NodeID][]Edge),
		dynamic:      make(map[trace.Role]bool),
	}
	for _, r := range roles {
		if b.declared[r] {
			b.addErr(fmt.Errorf("duplicate declared role %q", r))
			continue
		}
		b.declared[r] = true
	}
	return b
}

func (b *Builder) addErr(err error) {
	b.err = multierror.Append(b.err, err)
}

func (b *Builder) freshID(prefix string) NodeID {
	b.counter++
	return NodeID(fmt.Sprintf("%s#%d", prefix, b.counter))
}

func (b *Builder) add(n *Node) NodeID {
	b.nodes[n.ID] = n
	b.order = append(b.order, n.ID)
	return n.ID
}

// AddInitial adds the unique initial node. Calling it more than once
// records a build error (only one initial node is permitted).
func (b *Builder) AddInitial() NodeID {
	if b.initialSet {
		b.addErr(fmt.Errorf("initial node already added"))
	}
	id := b.freshID("initial")
	b.add(&Node{ID: id, Kind: NodeInitial})
	b.initial = id
	b.initialSet = true
	return id
}

// AddTerminal adds a terminal node. Multiple terminals are permitted: a
// protocol may end in more than one place.
func (b *Builder) AddTerminal() NodeID {
	id := b.freshID("terminal")
	b.add(&Node{ID: id, Kind: NodeTerminal})
	return id
}

// AddAction adds a node carrying the given action.
func (b *Builder) AddAction(action Action) NodeID {
	id := b.freshID("action")
	b.add(&Node{ID: id, Kind: NodeAction, Action: action})
	for _, r := range action.Participants() {
		if !b.declared[r] {
			b.dynamic[r] = true
		}
	}
	return id
}

// AddBranch adds a choice point decided by role at.
func (b *Builder) AddBranch(at trace.Role) NodeID {
	id := b.freshID("branch")
	b.add(&Node{ID: id, Kind: NodeBranch, At: at})
	return id
}

// AddMerge adds a confluence node for a choice.
func (b *Builder) AddMerge() NodeID {
	id := b.freshID("merge")
	b.add(&Node{ID: id, Kind: NodeMerge})
	return id
}

// AddFork adds the entry node of a parallel composition identified by
// parallelID.
func (b *Builder) AddFork(parallelID string) NodeID {
	id := b.freshID("fork")
	b.add(&Node{ID: id, Kind: NodeFork, ParallelID: parallelID})
	return id
}

// AddJoin adds the exit node of the parallel composition identified by
// parallelID.
func (b *Builder) AddJoin(parallelID string) NodeID {
	id := b.freshID("join")
	b.add(&Node{ID: id, Kind: NodeJoin, ParallelID: parallelID})
	return id
}

// AddRecursive adds a loop header carrying label.
func (b *Builder) AddRecursive(label string) NodeID {
	id := b.freshID("recursive")
	b.add(&Node{ID: id, Kind: NodeRecursive, Label: label})
	return id
}

// MarkDynamicRole records name as a dynamically-introduced role even if it
// never appears as an action participant yet (e.g. reserved ahead of an
// `invitation`). Most callers never need this: AddAction already infers
// dynamic roles from participants not present in the declared role list.
func (b *Builder) MarkDynamicRole(name trace.Role) {
	if !b.declared[name] {
		b.dynamic[name] = true
	}
}

func (b *Builder) connect(e Edge) {
	if _, ok := b.nodes[e.From]; !ok {
		b.addErr(fmt.Errorf("edge from unknown node %q", e.From))
		return
	}
	if _, ok := b.nodes[e.To]; !ok {
		b.addErr(fmt.Errorf("edge to unknown node %q", e.To))
		return
	}
	b.outgoing[e.From] = append(b.outgoing[e.From], e)
	b.incoming[e.To] = append(b.incoming[e.To], e)
}

// Connect adds a plain sequence edge from -> to.
func (b *Builder) Connect(from, to NodeID) {
	b.connect(Edge{From: from, To: to, Kind: EdgeSequence})
}

// ConnectBranch adds a labelled branch edge out of a branch node.
func (b *Builder) ConnectBranch(from, to NodeID, label string) {
	b.connect(Edge{From: from, To: to, Kind: EdgeBranch, Label: label})
}

// ConnectFork adds the fork -> branch-start edge.
func (b *Builder) ConnectFork(from, to NodeID) {
	b.connect(Edge{From: from, To: to, Kind: EdgeFork})
}

// ConnectJoin adds a branch-end -> join edge.
func (b *Builder) ConnectJoin(from, to NodeID) {
	b.connect(Edge{From: from, To: to, Kind: EdgeJoin})
}

// ConnectContinue adds a back-edge into a recursive node.
func (b *Builder) ConnectContinue(from, to NodeID) {
	b.connect(Edge{From: from, To: to, Kind: EdgeContinue})
}

// Build validates every invariant in and returns the finished
// CFG, or every violation found so far joined into one error (via
// hashicorp/go-multierror) if any invariant fails.
func (b *Builder) Build() (*CFG, error) {
	b.validateInitial()
	b.validateDegrees()
	b.validateForkJoin()
	b.validateEdgeKindsPerNodeKind()
	b.validateContinueEdges()

	if b.err.ErrorOrNil() != nil {
		return nil, b.err.ErrorOrNil()
	}

	c := &CFG{
		ProtocolName: b.protocolName,
		Roles:        b.roles,
		nodes:        b.nodes,
		order:        b.order,
		outgoing:     b.outgoing,
		incoming:     b.incoming,
		initial:      b.initial,
		dynamic:      b.dynamic,
	}
	return c, nil
}

func (b *Builder) validateInitial() {
	if !b.initialSet {
		b.addErr(fmt.Errorf("no initial node added"))
		return
	}
	out := b.outgoing[b.initial]
	if len(out) != 1 {
		b.addErr(fmt.Errorf("initial node must have exactly one outgoing edge, has %d", len(out)))
		return
	}
	if out[0].Kind != EdgeSequence {
		b.addErr(fmt.Errorf("initial node's outgoing edge must be a sequence edge"))
	}
}

func (b *Builder) validateDegrees() {
	for _, id := range b.order {
		n := b.nodes[id]
		if n.Kind != NodeTerminal && len(b.outgoing[id]) == 0 {
			b.addErr(fmt.Errorf("node %q (%s) has no outgoing edge", id, n.Kind))
		}
		if n.Kind != NodeInitial && len(b.incoming[id]) == 0 {
			b.addErr(fmt.Errorf("node %q (%s) has no incoming edge", id, n.Kind))
		}
	}
}

func (b *Builder) validateForkJoin() {
	forks := make(map[string]NodeID)
	joins := make(map[string]NodeID)
	for _, id := range b.order {
		n := b.nodes[id]
		switch n.Kind {
		case NodeFork:
			if prev, ok := forks[n.ParallelID]; ok {
				b.addErr(fmt.Errorf("duplicate fork for parallel_id %q (%q and %q)", n.ParallelID, prev, id))
			}
			forks[n.ParallelID] = id
		case NodeJoin:
			if prev, ok := joins[n.ParallelID]; ok {
				b.addErr(fmt.Errorf("duplicate join for parallel_id %q (%q and %q)", n.ParallelID, prev, id))
			}
			joins[n.ParallelID] = id
		}
	}
	for pid := range forks {
		if _, ok := joins[pid]; !ok {
			b.addErr(fmt.Errorf("fork %q has no matching join", pid))
		}
	}
	for pid := range joins {
		if _, ok := forks[pid]; !ok {
			b.addErr(fmt.Errorf("join %q has no matching fork", pid))
		}
	}
}

func (b *Builder) validateEdgeKindsPerNodeKind() {
	for _, id := range b.order {
		n := b.nodes[id]
		switch n.Kind {
		case NodeBranch:
			for _, e := range b.outgoing[id] {
				if e.Kind != EdgeBranch {
					b.addErr(fmt.Errorf("branch node %q has non-branch outgoing edge to %q", id, e.To))
				}
			}
		case NodeFork:
			for _, e := range b.outgoing[id] {
				if e.Kind != EdgeFork {
					b.addErr(fmt.Errorf("fork node %q has non-fork outgoing edge to %q", id, e.To))
				}
			}
		}
		if n.Kind == NodeJoin {
			for _, e := range b.incoming[id] {
				if e.Kind != EdgeJoin {
					b.addErr(fmt.Errorf("join node %q has non-join incoming edge from %q", id, e.From))
				}
			}
		}
	}
}

// validateContinueEdges checks "every continue edge targets a
// recursive node whose label is in lexical scope of the edge's source" by
// approximating lexical scope as forward-reachability from the recursive
// node to the continue edge's source, walking only sequence/branch/fork/join
// edges (never continue edges, which would make every recursive node
// trivially reach everything downstream of any loop).
func (b *Builder) validateContinueEdges() {
	for _, id := range b.order {
		for _, e := range b.outgoing[id] {
			if e.Kind != EdgeContinue {
				continue
			}
			target, ok := b.nodes[e.To]
			if !ok || target.Kind != NodeRecursive {
				b.addErr(fmt.Errorf("continue edge from %q targets non-recursive node %q", id, e.To))
				continue
			}
			if !b.forwardReaches(e.To, e.From) {
				b.addErr(fmt.Errorf("continue edge from %q targets recursive node %q (label %q) not in lexical scope", id, e.To, target.Label))
			}
		}
	}
}

func (b *Builder) forwardReaches(from, to NodeID) bool {
	if from == to {
		return true
	}
	visited := map[NodeID]bool{from: true}
	queue := []NodeID{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range b.outgoing[cur] {
			if e.Kind == EdgeContinue {
				continue
			}
			if e.To == to {
				return true
			}
			if !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return false
}
