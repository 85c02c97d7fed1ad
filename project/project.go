// Package project implements a minimal structural projection from a CFG to
// a per-role CFSM for every declared role. It is not a general session-type
// projection algorithm: it assumes the CFG already passed the choice
// determinism, choice mergeability, and recursion-in-parallel checks, and
// produces a CFSM whose state topology mirrors the CFG's node/edge arena
// exactly rather than pruning role-irrelevant nodes away.
//
// Every role receives one CFSM state per CFG node, connected by the same
// edges the CFG has; the transition kind at each node is specialized per
// role: send/receive for the message's actual sender/recipient, a
// choice-marker at every branch node for every role (deciding or not),
// sub-protocol for the roles named in a do action's role arguments, and
// tau for everything else, including the initial, merge, fork, join and
// recursive nodes and sub-protocol calls the role is not a party to. A
// role's first step is therefore the tau out of the initial node. This is
// sound under the
// mergeability assumption: a non-deciding role's behavior is required to be
// identical across every outgoing branch, so materializing a choice-marker
// (rather than a true receive-driven selection) at every role does not
// introduce any branch the role could not already observe converging on.
package project

import (
	"fmt"

	"github.com/mpst-workbench/core/cfg"
	"github.com/mpst-workbench/core/cfsm"
	"github.com/mpst-workbench/core/trace"
	"github.com/mpst-workbench/core/werrors"
)

// Project derives a CFSM for every role declared in g (statically declared
// roles only; dynamically introduced roles have no fixed local automaton to
// project ahead of time). Errors accumulate rather than abort: a single
// malformed node (e.g. a multicast action, which cannot be expressed as a
// single-peer CFSM transition) degrades that node to a tau transition for
// every role and is reported, so the rest of the graph still projects.
func Project(g *cfg.CFG) (map[trace.Role]*cfsm.CFSM, []error) {
	var errs []error
	out := make(map[trace.Role]*cfsm.CFSM, len(g.Roles))

	for i, role := range g.Roles {
		states := make([]cfsm.StateID, 0, len(g.Nodes()))
		var terminal []cfsm.StateID
		var transitions []cfsm.Transition

		for _, n := range g.Nodes() {
			id := cfsm.StateID(n.ID)
			states = append(states, id)
			if n.Kind == cfg.NodeTerminal {
				terminal = append(terminal, id)
			}
			trs, nodeErrs := projectNode(g, n, role)
			transitions = append(transitions, trs...)
			if i == 0 {
				// A node's errors do not depend on the role, so they are
				// reported once rather than once per role.
				errs = append(errs, nodeErrs...)
			}
		}

		out[role] = cfsm.NewCFSM(role, states, cfsm.StateID(g.Initial()), terminal, transitions)
	}

	return out, errs
}

func projectNode(g *cfg.CFG, n *cfg.Node, role trace.Role) ([]cfsm.Transition, []error) {
	from := cfsm.StateID(n.ID)
	edges := g.Out(n.ID)

	switch n.Kind {
	case cfg.NodeBranch:
		trs := make([]cfsm.Transition, 0, len(edges))
		for _, e := range edges {
			trs = append(trs, cfsm.Transition{
				From: from, To: cfsm.StateID(e.To),
				Kind: cfsm.TransitionChoiceMarker, Label: trace.Label(e.Label),
			})
		}
		return trs, nil

	case cfg.NodeAction:
		return projectAction(n, edges, role)

	default:
		// NodeInitial, NodeMerge, NodeFork, NodeJoin, NodeRecursive,
		// NodeTerminal: every role silently advances along every outgoing
		// edge (a fork's branches are all offered as tau options; the role
		// commits to whichever one its own subsequent transitions actually
		// use and is otherwise inert until the matching join).
		trs := make([]cfsm.Transition, 0, len(edges))
		for _, e := range edges {
			trs = append(trs, cfsm.Transition{From: from, To: cfsm.StateID(e.To), Kind: cfsm.TransitionTau})
		}
		return trs, nil
	}
}

func projectAction(n *cfg.Node, edges []cfg.Edge, role trace.Role) ([]cfsm.Transition, []error) {
	from := cfsm.StateID(n.ID)
	a := n.Action

	if a.Kind == cfg.ActionMessage && a.IsMulticast() {
		err := werrors.New(werrors.KindMulticastUnsupported,
			fmt.Sprintf("node %q: multicast action %q cannot be projected to a single-peer CFSM transition; projecting as tau for every role", n.ID, a.Label))
		return tauEdges(from, edges), []error{err}
	}

	switch a.Kind {
	case cfg.ActionMessage:
		if role == a.From {
			return oneOf(edges, cfsm.Transition{
				From: from, Kind: cfsm.TransitionSend,
				Peer: a.To[0], Label: a.Label, PayloadType: a.PayloadType,
			}), nil
		}
		if role == a.To[0] {
			return oneOf(edges, cfsm.Transition{
				From: from, Kind: cfsm.TransitionReceive,
				Peer: a.From, Label: a.Label, PayloadType: a.PayloadType,
			}), nil
		}
		return tauEdges(from, edges), nil

	case cfg.ActionDo:
		for _, r := range a.RoleArguments {
			if r == role {
				return oneOf(edges, cfsm.Transition{
					From: from, Kind: cfsm.TransitionSubProtocol,
					Protocol: a.Protocol, RoleArguments: a.RoleArguments,
				}), nil
			}
		}
		return tauEdges(from, edges), nil

	default:
		// ActionTau, ActionCreateParticipants, ActionInvitation,
		// ActionDynamicRoleDeclaration: no per-role communication content,
		// so every role (participant or not) sees a plain silent step.
		return tauEdges(from, edges), nil
	}
}

// oneOf completes tr with the single outgoing edge's target. Action nodes
// (message/do) are built by the CFG builder with exactly one outgoing
// sequence edge; if that invariant is ever violated upstream, only the
// first edge is used and the rest are silently unreachable via this
// transition, which a verifier check is responsible for catching.
func oneOf(edges []cfg.Edge, tr cfsm.Transition) []cfsm.Transition {
	if len(edges) == 0 {
		return nil
	}
	tr.To = cfsm.StateID(edges[0].To)
	return []cfsm.Transition{tr}
}

func tauEdges(from cfsm.StateID, edges []cfg.Edge) []cfsm.Transition {
	trs := make([]cfsm.Transition, 0, len(edges))
	for _, e := range edges {
		trs = append(trs, cfsm.Transition{From: from, To: cfsm.StateID(e.To), Kind: cfsm.TransitionTau})
	}
	return trs
}
