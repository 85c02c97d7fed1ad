package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mpst-workbench/core/cfg"
	"github.com/mpst-workbench/core/cfsm"
	"github.com/mpst-workbench/core/fixtures"
	"github.com/mpst-workbench/core/project"
	"github.com/mpst-workbench/core/trace"
)

// Scenario names, one per concrete protocol this workbench ships a fixture
// for.
const (
	ScenarioRequestResponse    = "request-response"
	ScenarioThreePartyLinear   = "three-party-linear"
	ScenarioChoiceAutoFirst    = "choice-auto-first"
	ScenarioTwoPhaseCommit     = "two-phase-commit-votes"
	ScenarioBoundedRecursion   = "bounded-recursion"
	ScenarioMutualWaitDeadlock = "mutual-wait-deadlock"
)

// cfgScenarios lists every scenario with a well-formed CFG. mutual-wait-
// deadlock is deliberately absent: it is built directly as a pair of
// incompatible CFSMs with no corresponding CFG (see fixtures.MutualWaitDeadlock).
var cfgScenarios = map[string]func() *cfg.CFG{
	ScenarioRequestResponse:  fixtures.RequestResponse,
	ScenarioThreePartyLinear: fixtures.ThreePartyLinear,
	ScenarioChoiceAutoFirst:  fixtures.ChoiceAutoFirst,
	ScenarioTwoPhaseCommit:   fixtures.TwoPhaseCommitVotes,
	ScenarioBoundedRecursion: fixtures.BoundedRecursion,
}

func scenarioList() string {
	names := make([]string, 0, len(cfgScenarios)+1)
	for name := range cfgScenarios {
		names = append(names, name)
	}
	names = append(names, ScenarioMutualWaitDeadlock)
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// resolveCFG returns the named scenario's global CFG. mutual-wait-deadlock
// and unknown names both report an error: the former has no CFG
// representation and only runs in distributed mode.
func resolveCFG(name string) (*cfg.CFG, error) {
	ctor, ok := cfgScenarios[name]
	if !ok {
		if name == ScenarioMutualWaitDeadlock {
			return nil, fmt.Errorf("scenario %q has no CFG representation; it only runs in -mode distributed", name)
		}
		return nil, fmt.Errorf("unknown scenario %q (known: %s)", name, scenarioList())
	}
	return ctor(), nil
}

// resolveCFSMs returns the named scenario projected into one CFSM per
// role, suitable for the distributed coordinator.
func resolveCFSMs(name string) (roles []trace.Role, sims map[trace.Role]*cfsm.CFSM, err error) {
	if name == ScenarioMutualWaitDeadlock {
		return []trace.Role{"A", "B"}, fixtures.MutualWaitDeadlock(), nil
	}
	g, err := resolveCFG(name)
	if err != nil {
		return nil, nil, err
	}
	projected, errs := project.Project(g)
	if len(errs) > 0 {
		return nil, nil, fmt.Errorf("projecting scenario %q: %w", name, errs[0])
	}
	return g.Roles, projected, nil
}
