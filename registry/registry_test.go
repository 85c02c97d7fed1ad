package registry

import (
	"strings"
	"testing"

	"github.com/mpst-workbench/core/cfg"
	"github.com/mpst-workbench/core/trace"
)

func linearTwoParty(name string, from, to trace.Role) *cfg.CFG {
	b := cfg.NewBuilder(name, []trace.Role{from, to})
	init := b.AddInitial()
	act := b.AddAction(cfg.Action{Kind: cfg.ActionMessage, From: from, To: []trace.Role{to}, Label: "M"})
	term := b.AddTerminal()
	b.Connect(init, act)
	b.Connect(act, term)
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

func doProtocol(name string, callee string, args []trace.Role) *cfg.CFG {
	b := cfg.NewBuilder(name, []trace.Role{"A", "B"})
	init := b.AddInitial()
	call := b.AddAction(cfg.Action{Kind: cfg.ActionDo, Protocol: callee, RoleArguments: args})
	term := b.AddTerminal()
	b.Connect(init, call)
	b.Connect(call, term)
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

func TestRegistry_ResolveAndRoleMapping(t *testing.T) {
	sub := linearTwoParty("Sub", "P1", "P2")
	top := doProtocol("Top", "Sub", []trace.Role{"X", "Y"})

	r, err := New([]Declaration{
		{Name: "Top", FormalRoles: []trace.Role{"X", "Y"}, CFG: top},
		{Name: "Sub", FormalRoles: []trace.Role{"P1", "P2"}, CFG: sub},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, err := r.Resolve("Sub")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != sub {
		t.Fatal("Resolve() did not return the registered CFG")
	}

	mapping, err := r.CreateRoleMapping("Sub", []trace.Role{"X", "Y"})
	if err != nil {
		t.Fatalf("CreateRoleMapping() error = %v", err)
	}
	if mapping["P1"] != "X" || mapping["P2"] != "Y" {
		t.Fatalf("mapping = %v, want P1->X P2->Y", mapping)
	}
}

func TestRegistry_ProtocolNotFound(t *testing.T) {
	top := doProtocol("Top", "Missing", []trace.Role{"X", "Y"})
	_, err := New([]Declaration{{Name: "Top", FormalRoles: []trace.Role{"X", "Y"}, CFG: top}})
	if err == nil {
		t.Fatal("expected error referencing an undeclared protocol")
	}
	if !strings.Contains(err.Error(), "Missing") {
		t.Fatalf("error = %v, want mention of Missing", err)
	}
}

func TestRegistry_RoleArityMismatch(t *testing.T) {
	sub := linearTwoParty("Sub", "P1", "P2")
	top := doProtocol("Top", "Sub", []trace.Role{"OnlyOne"})

	_, err := New([]Declaration{
		{Name: "Top", FormalRoles: []trace.Role{"X"}, CFG: top},
		{Name: "Sub", FormalRoles: []trace.Role{"P1", "P2"}, CFG: sub},
	})
	if err == nil {
		t.Fatal("expected invalid-role-arguments error for arity mismatch")
	}
}

func TestRegistry_CircularDependencyDetected(t *testing.T) {
	a := doProtocol("A", "B", []trace.Role{"X", "Y"})
	b := doProtocol("B", "A", []trace.Role{"X", "Y"})

	_, err := New([]Declaration{
		{Name: "A", FormalRoles: []trace.Role{"X", "Y"}, CFG: a},
		{Name: "B", FormalRoles: []trace.Role{"X", "Y"}, CFG: b},
	})
	if err == nil {
		t.Fatal("expected circular-dependency error")
	}
	if !strings.Contains(err.Error(), "circular") {
		t.Fatalf("error = %v, want mention of circular dependency", err)
	}
}

func TestRegistry_CreateRoleMappingRejectsDuplicateActuals(t *testing.T) {
	sub := linearTwoParty("Sub", "P1", "P2")
	r, err := New([]Declaration{{Name: "Sub", FormalRoles: []trace.Role{"P1", "P2"}, CFG: sub}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := r.CreateRoleMapping("Sub", []trace.Role{"X", "X"}); err == nil {
		t.Fatal("expected error for non-bijective role mapping")
	}
}
