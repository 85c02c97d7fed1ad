package cfsm

import (
	"testing"

	"github.com/mpst-workbench/core/trace"
)

// senderCFSM: s0 --send(Client->Server,Request)--> s1 (terminal).
func senderCFSM() *CFSM {
	return NewCFSM("Client", []StateID{"s0", "s1"}, "s0", []StateID{"s1"}, []Transition{
		{From: "s0", To: "s1", Kind: TransitionSend, Peer: "Server", Label: "Request"},
	})
}

// receiverCFSM: r0 --receive(Client,Request)--> r1 (terminal).
func receiverCFSM() *CFSM {
	return NewCFSM("Server", []StateID{"r0", "r1"}, "r0", []StateID{"r1"}, []Transition{
		{From: "r0", To: "r1", Kind: TransitionReceive, Peer: "Client", Label: "Request"},
	})
}

func TestSimulator_SendProducesOutgoingMessage(t *testing.T) {
	s := New(senderCFSM())
	evt, err := s.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if evt.Kind != trace.EventSend {
		t.Fatalf("expected send event, got %s", evt.Kind)
	}
	if !s.Completed() {
		t.Fatalf("expected completion after the single send transition")
	}
	out := s.OutgoingMessages()
	if len(out) != 1 {
		t.Fatalf("expected 1 outgoing message, got %d", len(out))
	}
	if out[0].From != "Client" || out[0].To != "Server" || out[0].Label != "Request" {
		t.Errorf("unexpected outgoing message: %+v", out[0])
	}
	if len(s.OutgoingMessages()) != 0 {
		t.Errorf("expected OutgoingMessages to drain the queue")
	}
}

func TestSimulator_ReceiveBlocksUntilMessageArrives(t *testing.T) {
	s := New(receiverCFSM())
	if _, err := s.Step(); err == nil {
		t.Fatalf("expected no-enabled-transitions with an empty buffer")
	}

	if err := s.DeliverMessage(trace.NewMessage("Client", "Server", "Request", "")); err != nil {
		t.Fatalf("DeliverMessage: %v", err)
	}

	evt, err := s.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if evt.Kind != trace.EventReceive {
		t.Fatalf("expected receive event, got %s", evt.Kind)
	}
	if !s.Completed() {
		t.Fatalf("expected completion after the single receive transition")
	}
}

func TestSimulator_FIFOOrderIsEnforced(t *testing.T) {
	m := NewCFSM("Server", []StateID{"r0", "r1", "r2"}, "r0", []StateID{"r2"}, []Transition{
		{From: "r0", To: "r1", Kind: TransitionReceive, Peer: "Client", Label: "B"},
		{From: "r1", To: "r2", Kind: TransitionReceive, Peer: "Client", Label: "A"},
	})
	s := New(m, WithVerifyFIFO(true))

	if err := s.DeliverMessage(trace.NewMessage("Client", "Server", "A", "")); err != nil {
		t.Fatalf("DeliverMessage A: %v", err)
	}
	if err := s.DeliverMessage(trace.NewMessage("Client", "Server", "B", "")); err != nil {
		t.Fatalf("DeliverMessage B: %v", err)
	}

	enabled := s.EnabledTransitions()
	if len(enabled) != 0 {
		t.Fatalf("expected no transition enabled: head of queue is A but only a B-receiver exists from r0, got %d enabled", len(enabled))
	}
}

func TestSimulator_BufferOverflow(t *testing.T) {
	s := New(receiverCFSM(), WithMaxBufferSize(1))
	if err := s.DeliverMessage(trace.NewMessage("Client", "Server", "Request", "")); err != nil {
		t.Fatalf("first DeliverMessage: %v", err)
	}
	if err := s.DeliverMessage(trace.NewMessage("Client", "Server", "Request", "")); err == nil {
		t.Fatalf("expected buffer-overflow on the second delivery")
	}
}

func TestSimulator_ManualStrategyRequiresSelection(t *testing.T) {
	m := NewCFSM("Server", []StateID{"s0", "s1", "s2"}, "s0", []StateID{"s1", "s2"}, []Transition{
		{From: "s0", To: "s1", Kind: TransitionTau},
		{From: "s0", To: "s2", Kind: TransitionChoiceMarker, Label: "alt"},
	})
	s := New(m, WithTransitionStrategy(TransitionManual))

	if _, err := s.Step(); err == nil {
		t.Fatalf("expected transition-required before a selection is made")
	}
	pending := s.PendingTransitions()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending transitions, got %d", len(pending))
	}
	if err := s.SelectTransition(1); err != nil {
		t.Fatalf("SelectTransition: %v", err)
	}
	evt, err := s.Step()
	if err != nil {
		t.Fatalf("Step after selection: %v", err)
	}
	if evt.Kind != trace.EventChoice {
		t.Fatalf("expected choice event for the selected transition, got %s", evt.Kind)
	}
	if s.CurrentState() != "s2" {
		t.Fatalf("expected to land on s2, got %s", s.CurrentState())
	}
}

func TestSimulator_MaxStepsReached(t *testing.T) {
	m := NewCFSM("A", []StateID{"s0", "s1"}, "s0", nil, []Transition{
		{From: "s0", To: "s1", Kind: TransitionTau},
		{From: "s1", To: "s0", Kind: TransitionTau},
	})
	s := New(m, WithMaxSteps(3))
	for i := 0; i < 3; i++ {
		if _, err := s.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if _, err := s.Step(); err == nil {
		t.Fatalf("expected max-steps error on the 4th step")
	}
	if !s.ReachedMaxSteps() {
		t.Fatalf("expected ReachedMaxSteps to be true")
	}
	if s.Completed() {
		t.Fatalf("a non-terminating CFSM must never report completion")
	}
}

func TestSimulator_Reset(t *testing.T) {
	s := New(senderCFSM())
	if _, err := s.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !s.Completed() {
		t.Fatalf("expected completion")
	}
	s.Reset()
	if s.Completed() {
		t.Fatalf("expected Reset to clear completion")
	}
	if s.CurrentState() != "s0" {
		t.Fatalf("expected Reset to return to the initial state, got %s", s.CurrentState())
	}
	if s.StepCount() != 0 {
		t.Fatalf("expected Reset to clear the step count")
	}
}

func TestSimulator_SubProtocolInvocationAndReturn(t *testing.T) {
	inner := NewCFSM("A", []StateID{"i0", "i1"}, "i0", []StateID{"i1"}, []Transition{
		{From: "i0", To: "i1", Kind: TransitionSend, Peer: "B", Label: "Ping"},
	})
	reg := NewRegistry(
		map[string]map[trace.Role]*CFSM{"Ping": {"A": inner}},
		map[string][]trace.Role{"Ping": {"A", "B"}},
	)

	outer := NewCFSM("A", []StateID{"o0", "o1", "o2"}, "o0", []StateID{"o2"}, []Transition{
		{From: "o0", To: "o1", Kind: TransitionSubProtocol, Protocol: "Ping", RoleArguments: []trace.Role{"A", "B"}},
		{From: "o1", To: "o2", Kind: TransitionTau},
	})
	s := New(outer, WithRegistry(reg))

	evt, err := s.Step()
	if err != nil {
		t.Fatalf("Step 1 (sub-protocol enter): %v", err)
	}
	if evt.Kind != trace.EventSubprotocolEnter {
		t.Fatalf("expected subprotocol-enter event, got %s", evt.Kind)
	}
	if s.CurrentState() != "i0" {
		t.Fatalf("expected to resume inside the inner CFSM at i0, got %s", s.CurrentState())
	}

	evt, err = s.Step()
	if err != nil {
		t.Fatalf("Step 2 (inner send): %v", err)
	}
	if evt.Kind != trace.EventSend {
		t.Fatalf("expected send event inside the sub-protocol, got %s", evt.Kind)
	}
	if s.CurrentState() != "o1" {
		t.Fatalf("expected the inner terminal to pop back to o1, got %s", s.CurrentState())
	}

	evt, err = s.Step()
	if err != nil {
		t.Fatalf("Step 3 (resume outer): %v", err)
	}
	if evt.Kind != trace.EventTau {
		t.Fatalf("expected tau event back in the outer CFSM, got %s", evt.Kind)
	}
	if !s.Completed() {
		t.Fatalf("expected completion after resuming the outer protocol")
	}
}

func TestSimulator_RecordTraceAndSubscribers(t *testing.T) {
	s := New(senderCFSM(), WithRecordTrace(true))
	var seen []trace.EventKind
	sub := s.On(trace.EventSend, func(e trace.Event) { seen = append(seen, e.Kind) })
	defer sub.Unsubscribe()

	if _, err := s.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected 1 send event delivered to the subscriber, got %d", len(seen))
	}
	if len(s.Trace().Snapshot()) != 1 {
		t.Fatalf("expected 1 recorded event in the trace")
	}
}
