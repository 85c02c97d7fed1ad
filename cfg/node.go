package cfg

import "github.com/mpst-workbench/core/trace"

// NodeID is a stable identifier for a node within one CFG.
type NodeID string

// NodeKind discriminates the Node union.
type NodeKind string

const (
	NodeInitial    NodeKind = "initial"
	NodeTerminal   NodeKind = "terminal"
	NodeAction     NodeKind = "action"
	NodeBranch     NodeKind = "branch"
	NodeMerge      NodeKind = "merge"
	NodeFork       NodeKind = "fork"
	NodeJoin       NodeKind = "join"
	NodeRecursive  NodeKind = "recursive"
)

// Node is one vertex of the CFG. Only the fields relevant to Kind carry
// meaning; everyone consuming a Node must switch on Kind exhaustively.
type Node struct {
	ID   NodeID
	Kind NodeKind

	// NodeAction.
	Action Action

	// NodeBranch.
	At trace.Role

	// NodeFork / NodeJoin.
	ParallelID string

	// NodeRecursive.
	Label string
}

// EdgeKind discriminates the Edge union ("Edge types").
type EdgeKind string

const (
	EdgeSequence EdgeKind = "sequence"
	EdgeBranch   EdgeKind = "branch"
	EdgeFork     EdgeKind = "fork"
	EdgeJoin     EdgeKind = "join"
	EdgeContinue EdgeKind = "continue"
)

// Edge is one directed connection between two nodes.
type Edge struct {
	From  NodeID
	To    NodeID
	Kind  EdgeKind
	Label string // set when Kind == EdgeBranch: the branch's discriminating label
}
