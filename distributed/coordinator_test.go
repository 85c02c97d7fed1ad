package distributed

import (
	"testing"

	"github.com/mpst-workbench/core/cfsm"
	"github.com/mpst-workbench/core/fixtures"
	"github.com/mpst-workbench/core/project"
	"github.com/mpst-workbench/core/trace"
)

func buildSims(t *testing.T, machines map[trace.Role]*cfsm.CFSM, opts ...cfsm.Option) map[trace.Role]*cfsm.Simulator {
	t.Helper()
	sims := make(map[trace.Role]*cfsm.Simulator, len(machines))
	for role, m := range machines {
		sims[role] = cfsm.New(m, opts...)
	}
	return sims
}

func rolesOf(machines map[trace.Role]*cfsm.CFSM) []trace.Role {
	out := make([]trace.Role, 0, len(machines))
	for r := range machines {
		out = append(out, r)
	}
	return out
}

func TestCoordinator_RequestResponse_CompletesWithOneMessageEach(t *testing.T) {
	g := fixtures.RequestResponse()
	machines, errs := project.Project(g)
	if len(errs) != 0 {
		t.Fatalf("Project: %v", errs)
	}
	roles := []trace.Role{"Client", "Server"}
	sims := buildSims(t, machines)

	c, err := New(roles, sims, WithRecordTrace(true))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.RunToCompletion(); err != nil {
		t.Fatalf("RunToCompletion: %v", err)
	}
	if !c.Completed() {
		t.Fatalf("expected completion")
	}
	if c.Deadlocked() || c.ReachedMaxSteps() {
		t.Fatalf("unexpected failure state")
	}
	var sendCount, receiveCount int
	for _, e := range c.GlobalTrace().Snapshot() {
		switch e.Kind {
		case trace.EventSend:
			sendCount++
		case trace.EventReceive:
			receiveCount++
		}
	}
	if sendCount != 2 || receiveCount != 2 {
		t.Fatalf("expected exactly 2 sends and 2 receives across the run (one of each per role), got send=%d receive=%d", sendCount, receiveCount)
	}
}

func TestCoordinator_ThreePartyLinear_RoundRobinIsDeterministic(t *testing.T) {
	run := func() (int, []trace.EventKind) {
		g := fixtures.ThreePartyLinear()
		machines, errs := project.Project(g)
		if len(errs) != 0 {
			t.Fatalf("Project: %v", errs)
		}
		roles := []trace.Role{"A", "B", "C"}
		sims := buildSims(t, machines)
		c, err := New(roles, sims, WithRecordTrace(true), WithSchedulingStrategy(SchedulingRoundRobin))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := c.RunToCompletion(); err != nil {
			t.Fatalf("RunToCompletion: %v", err)
		}
		var kinds []trace.EventKind
		for _, e := range c.GlobalTrace().Snapshot() {
			kinds = append(kinds, e.Kind)
		}
		return c.GlobalSteps(), kinds
	}

	steps1, kinds1 := run()
	steps2, kinds2 := run()
	if steps1 != steps2 {
		t.Fatalf("expected identical step counts across runs, got %d and %d", steps1, steps2)
	}
	if len(kinds1) != len(kinds2) {
		t.Fatalf("expected identical trace lengths, got %d and %d", len(kinds1), len(kinds2))
	}
	for i := range kinds1 {
		if kinds1[i] != kinds2[i] {
			t.Fatalf("round-robin run diverged at event %d: %s vs %s", i, kinds1[i], kinds2[i])
		}
	}

	sendCount := 0
	for _, k := range kinds1 {
		if k == trace.EventSend {
			sendCount++
		}
	}
	if sendCount != 3 {
		t.Fatalf("expected 3 send events across the three-party relay, got %d", sendCount)
	}
}

func TestCoordinator_MutualWaitDeadlock(t *testing.T) {
	machines := fixtures.MutualWaitDeadlock()
	roles := []trace.Role{"A", "B"}
	sims := buildSims(t, machines)

	c, err := New(roles, sims)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.RunToCompletion()
	if err == nil {
		t.Fatalf("expected a deadlock error")
	}
	if !c.Deadlocked() {
		t.Fatalf("expected Deadlocked to be true")
	}
	blocked := c.BlockedRoles()
	if len(blocked) != 2 {
		t.Fatalf("expected both roles blocked, got %v", blocked)
	}
}

func TestCoordinator_BufferOverflowPropagatesAsError(t *testing.T) {
	sender := cfsm.NewCFSM("A", []cfsm.StateID{"s0", "s1", "s2"}, "s0", []cfsm.StateID{"s2"}, []cfsm.Transition{
		{From: "s0", To: "s1", Kind: cfsm.TransitionSend, Peer: "B", Label: "Ping"},
		{From: "s1", To: "s2", Kind: cfsm.TransitionSend, Peer: "B", Label: "Ping"},
	})
	receiver := cfsm.NewCFSM("B", []cfsm.StateID{"r0"}, "r0", nil, nil)

	roles := []trace.Role{"A", "B"}
	sims := map[trace.Role]*cfsm.Simulator{
		"A": cfsm.New(sender),
		"B": cfsm.New(receiver, cfsm.WithMaxBufferSize(1)),
	}

	c, err := New(roles, sims, WithSchedulingStrategy(SchedulingRoundRobin))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Step(); err != nil {
		t.Fatalf("first step (A sends): %v", err)
	}
	if _, err := c.Step(); err == nil {
		t.Fatalf("expected the second send to overflow B's buffer")
	}
}

func TestCoordinator_ManualStrategyRequiresStepManual(t *testing.T) {
	sender := cfsm.NewCFSM("Client", []cfsm.StateID{"c0", "c1"}, "c0", []cfsm.StateID{"c1"}, []cfsm.Transition{
		{From: "c0", To: "c1", Kind: cfsm.TransitionSend, Peer: "Server", Label: "Request"},
	})
	receiver := cfsm.NewCFSM("Server", []cfsm.StateID{"s0", "s1"}, "s0", []cfsm.StateID{"s1"}, []cfsm.Transition{
		{From: "s0", To: "s1", Kind: cfsm.TransitionReceive, Peer: "Client", Label: "Request"},
	})
	roles := []trace.Role{"Client", "Server"}
	sims := map[trace.Role]*cfsm.Simulator{
		"Client": cfsm.New(sender),
		"Server": cfsm.New(receiver),
	}

	c, err := New(roles, sims, WithSchedulingStrategy(SchedulingManual))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Step(); err == nil {
		t.Fatalf("expected Step to reject manual scheduling")
	}
	if _, err := c.StepManual("Client"); err != nil {
		t.Fatalf("StepManual(Client): %v", err)
	}
	if _, err := c.StepManual("Client"); err == nil {
		t.Fatalf("expected Client to no longer be enabled after sending")
	}
	if _, err := c.StepManual("Server"); err != nil {
		t.Fatalf("StepManual(Server) receive: %v", err)
	}
}

func TestCoordinator_MaxStepsReached(t *testing.T) {
	machines := fixtures.MutualWaitDeadlock()
	// replace with a pair that makes progress forever, to exercise max-steps
	// instead of deadlock.
	a := cfsm.NewCFSM("A", []cfsm.StateID{"s0"}, "s0", nil, []cfsm.Transition{
		{From: "s0", To: "s0", Kind: cfsm.TransitionTau},
	})
	machines["A"] = a

	roles := rolesOf(machines)
	sims := buildSims(t, machines)

	c, err := New(roles, sims, WithMaxSteps(5))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.RunToCompletion(); err == nil {
		t.Fatalf("expected max-steps error")
	}
	if !c.ReachedMaxSteps() {
		t.Fatalf("expected ReachedMaxSteps to be true")
	}
}
