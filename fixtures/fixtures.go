// Package fixtures builds the concrete CFGs from scenarios
// ("Request/Response", "Three-party linear", etc.) once, so the verifier,
// both simulators, and the projection tests all exercise the same
// well-known protocols instead of each hand-rolling a slightly different
// one.
package fixtures

import (
	"github.com/mpst-workbench/core/cfg"
	"github.com/mpst-workbench/core/cfsm"
	"github.com/mpst-workbench/core/trace"
)

// RequestResponse builds: Client -> Server: Request; Server -> Client: Response.
// (scenario (a)).
func RequestResponse() *cfg.CFG {
	b := cfg.NewBuilder("RequestResponse", []trace.Role{"Client", "Server"})
	init := b.AddInitial()
	req := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: "Client", To: []trace.Role{"Server"}, Label: "Request"})
	resp := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: "Server", To: []trace.Role{"Client"}, Label: "Response"})
	term := b.AddTerminal()

	b.Connect(init, req)
	b.Connect(req, resp)
	b.Connect(resp, term)

	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// ThreePartyLinear builds: A -> B: M1; B -> C: M2; C -> A: M3.
// (scenario (b)).
func ThreePartyLinear() *cfg.CFG {
	b := cfg.NewBuilder("ThreePartyLinear", []trace.Role{"A", "B", "C"})
	init := b.AddInitial()
	m1 := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: "A", To: []trace.Role{"B"}, Label: "M1"})
	m2 := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: "B", To: []trace.Role{"C"}, Label: "M2"})
	m3 := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: "C", To: []trace.Role{"A"}, Label: "M3"})
	term := b.AddTerminal()

	b.Connect(init, m1)
	b.Connect(m1, m2)
	b.Connect(m2, m3)
	b.Connect(m3, term)

	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// ChoiceAutoFirst builds:
//
//	choice at Server {
//	  Server -> Client: Success
//	} or {
//	  Server -> Client: Failure
//	}
//
// (scenario (c)).
func ChoiceAutoFirst() *cfg.CFG {
	b := cfg.NewBuilder("ChoiceAutoFirst", []trace.Role{"Client", "Server"})
	init := b.AddInitial()
	branch := b.AddBranch("Server")
	success := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: "Server", To: []trace.Role{"Client"}, Label: "Success"})
	failure := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: "Server", To: []trace.Role{"Client"}, Label: "Failure"})
	merge := b.AddMerge()
	term := b.AddTerminal()

	b.Connect(init, branch)
	b.ConnectBranch(branch, success, "Success")
	b.ConnectBranch(branch, failure, "Failure")
	b.Connect(success, merge)
	b.Connect(failure, merge)
	b.Connect(merge, term)

	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// TwoPhaseCommitVotes builds a fork/join pair:
// P1 -> Coordinator: Vote || P2 -> Coordinator: Vote.
// (scenario (d)).
func TwoPhaseCommitVotes() *cfg.CFG {
	b := cfg.NewBuilder("TwoPhaseCommitVotes", []trace.Role{"P1", "P2", "Coordinator"})
	init := b.AddInitial()
	fork := b.AddFork("votes")
	v1 := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: "P1", To: []trace.Role{"Coordinator"}, Label: "Vote"})
	v2 := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: "P2", To: []trace.Role{"Coordinator"}, Label: "Vote"})
	join := b.AddJoin("votes")
	term := b.AddTerminal()

	b.Connect(init, fork)
	b.ConnectFork(fork, v1)
	b.ConnectFork(fork, v2)
	b.ConnectJoin(v1, join)
	b.ConnectJoin(v2, join)
	b.Connect(join, term)

	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// BoundedRecursion builds: rec L { A -> B: Data; continue L } with no exit
// branch (scenario (f)).
func BoundedRecursion() *cfg.CFG {
	b := cfg.NewBuilder("BoundedRecursion", []trace.Role{"A", "B"})
	init := b.AddInitial()
	rec := b.AddRecursive("L")
	data := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: "A", To: []trace.Role{"B"}, Label: "Data"})

	b.Connect(init, rec)
	b.Connect(rec, data)
	b.ConnectContinue(data, rec)

	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// MutualWaitDeadlock builds two hand-written CFSMs with no corresponding
// CFG: role A waits to receive X from B, role B waits to receive Y from A,
// and neither ever sends anything. A distributed run over this pair can
// never make progress (scenario (e)).
func MutualWaitDeadlock() map[trace.Role]*cfsm.CFSM {
	a := cfsm.NewCFSM("A", []cfsm.StateID{"a0", "a1"}, "a0", []cfsm.StateID{"a1"}, []cfsm.Transition{
		{From: "a0", To: "a1", Kind: cfsm.TransitionReceive, Peer: "B", Label: "X"},
	})
	b2 := cfsm.NewCFSM("B", []cfsm.StateID{"b0", "b1"}, "b0", []cfsm.StateID{"b1"}, []cfsm.Transition{
		{From: "b0", To: "b1", Kind: cfsm.TransitionReceive, Peer: "A", Label: "Y"},
	})
	return map[trace.Role]*cfsm.CFSM{"A": a, "B": b2}
}
