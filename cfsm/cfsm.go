// Package cfsm implements the per-role communicating finite state machine
// model and its step-wise simulator. A CFSM is one role's local view of a
// global protocol: a finite set of states, a distinguished initial state, a
// set of terminal states, and transitions labeled with send/receive/tau/
// choice-marker actions. CFSM values are produced by the project package
// (CFG projection) and consumed here and by the distributed coordinator.
package cfsm

import "github.com/mpst-workbench/core/trace"

// StateID is a stable identifier for a CFSM state.
type StateID string

// TransitionKind discriminates the action carried by a Transition.
type TransitionKind string

const (
	TransitionSend          TransitionKind = "send"
	TransitionReceive       TransitionKind = "receive"
	TransitionTau           TransitionKind = "tau"
	TransitionChoiceMarker  TransitionKind = "choice-marker"
	TransitionSubProtocol   TransitionKind = "sub-protocol"
)

// Transition is one directed edge of a CFSM's local LTS.
type Transition struct {
	From StateID
	To   StateID
	Kind TransitionKind

	// TransitionSend: Peer is the recipient. TransitionReceive: Peer is the
	// expected sender.
	Peer        trace.Role
	Label       trace.Label
	PayloadType string

	// TransitionSubProtocol.
	Protocol      string
	RoleArguments []trace.Role
}

// CFSM is one role's projected local state machine.
type CFSM struct {
	Role    trace.Role
	States  []StateID // declaration order
	Initial StateID

	terminal map[StateID]bool
	outgoing map[StateID][]Transition
}

// NewCFSM constructs a CFSM. transitions is indexed by From state; terminal
// marks which states have no further obligations.
func NewCFSM(role trace.Role, states []StateID, initial StateID, terminal []StateID, transitions []Transition) *CFSM {
	m := &CFSM{
		Role:     role,
		States:   append([]StateID(nil), states...),
		Initial:  initial,
		terminal: make(map[StateID]bool, len(terminal)),
		outgoing: make(map[StateID][]Transition),
	}
	for _, t := range terminal {
		m.terminal[t] = true
	}
	for _, tr := range transitions {
		m.outgoing[tr.From] = append(m.outgoing[tr.From], tr)
	}
	return m
}

// Out returns the outgoing transitions of a state, in declaration order.
func (m *CFSM) Out(id StateID) []Transition {
	return m.outgoing[id]
}

// IsTerminal reports whether id is one of the CFSM's terminal states.
func (m *CFSM) IsTerminal(id StateID) bool {
	return m.terminal[id]
}
