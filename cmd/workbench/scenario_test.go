package main

import "testing"

func TestResolveCFG_KnownScenarios(t *testing.T) {
	for name := range cfgScenarios {
		g, err := resolveCFG(name)
		if err != nil {
			t.Errorf("resolveCFG(%q) returned error: %v", name, err)
			continue
		}
		if g == nil {
			t.Errorf("resolveCFG(%q) returned a nil CFG", name)
		}
	}
}

func TestResolveCFG_DeadlockScenarioHasNoCFG(t *testing.T) {
	_, err := resolveCFG(ScenarioMutualWaitDeadlock)
	if err == nil {
		t.Fatalf("expected an error resolving a CFG for %q", ScenarioMutualWaitDeadlock)
	}
}

func TestResolveCFG_UnknownScenario(t *testing.T) {
	_, err := resolveCFG("not-a-real-scenario")
	if err == nil {
		t.Fatalf("expected an error for an unknown scenario")
	}
}

func TestResolveCFSMs_DeadlockScenario(t *testing.T) {
	roles, sims, err := resolveCFSMs(ScenarioMutualWaitDeadlock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 2 {
		t.Errorf("expected 2 roles, got %d", len(roles))
	}
	if len(sims) != 2 {
		t.Errorf("expected 2 CFSMs, got %d", len(sims))
	}
}

func TestResolveCFSMs_ProjectsCFGScenarios(t *testing.T) {
	roles, sims, err := resolveCFSMs(ScenarioRequestResponse)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 2 {
		t.Errorf("expected 2 roles, got %d", len(roles))
	}
	for _, r := range roles {
		if _, ok := sims[r]; !ok {
			t.Errorf("missing projected CFSM for role %q", r)
		}
	}
}
