// Package registry implements the protocol registry:
// resolution of protocol names to CFGs, role-substitution for sub-protocol
// invocation, and circular-dependency rejection.
package registry

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/mpst-workbench/core/cfg"
	"github.com/mpst-workbench/core/trace"
	"github.com/mpst-workbench/core/werrors"
)

// Declaration is one protocol entry handed to the registry: its CFG plus
// the formal role parameters it was declared with, in declaration order.
// FormalRoles is usually just CFG.Roles but is kept separate so a
// registry can be built directly from AST-shaped declarations without
// having built every sub-CFG yet.
type Declaration struct {
	Name        string
	FormalRoles []trace.Role
	CFG         *cfg.CFG
}

// Registry resolves protocol names to CFGs and validates `do` references
//.
type Registry struct {
	decls map[string]Declaration
}

// New indexes decls, validating that every `do` action in every protocol
// references a protocol present in decls with matching role arity, and that
// the invocation graph has no cycle. Every problem found is returned
// together (via hashicorp/go-multierror) rather than just the first.
func New(decls []Declaration) (*Registry, error) {
	r := &Registry{decls: make(map[string]Declaration, len(decls))}
	var errs *multierror.Error

	for _, d := range decls {
		if _, exists := r.decls[d.Name]; exists {
			errs = multierror.Append(errs, fmt.Errorf("duplicate protocol declaration %q", d.Name))
			continue
		}
		r.decls[d.Name] = d
	}

	for _, d := range decls {
		for _, n := range d.CFG.Nodes() {
			if n.Kind != cfg.NodeAction || n.Action.Kind != cfg.ActionDo {
				continue
			}
			target, ok := r.decls[n.Action.Protocol]
			if !ok {
				errs = multierror.Append(errs, werrors.New(werrors.KindProtocolNotFound,
					fmt.Sprintf("protocol %q invokes undeclared protocol %q", d.Name, n.Action.Protocol)))
				continue
			}
			if len(n.Action.RoleArguments) != len(target.FormalRoles) {
				errs = multierror.Append(errs, werrors.New(werrors.KindInvalidRoleArguments,
					fmt.Sprintf("protocol %q invokes %q with %d role arguments, want %d",
						d.Name, n.Action.Protocol, len(n.Action.RoleArguments), len(target.FormalRoles))))
			}
		}
	}

	if cyc := r.findCycle(); cyc != "" {
		errs = multierror.Append(errs, werrors.New(werrors.KindCircularDependency,
			fmt.Sprintf("circular sub-protocol dependency involving %q", cyc)))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve returns the CFG declared under name.
func (r *Registry) Resolve(name string) (*cfg.CFG, error) {
	d, ok := r.decls[name]
	if !ok {
		return nil, werrors.New(werrors.KindProtocolNotFound, fmt.Sprintf("protocol %q not found", name))
	}
	return d.CFG, nil
}

// FormalRoles returns the formal role parameters declared for name.
func (r *Registry) FormalRoles(name string) ([]trace.Role, error) {
	d, ok := r.decls[name]
	if !ok {
		return nil, werrors.New(werrors.KindProtocolNotFound, fmt.Sprintf("protocol %q not found", name))
	}
	return d.FormalRoles, nil
}

// CreateRoleMapping returns a bijective mapping from the formal roles
// declared by protocol to actualRoles, positionally. Wrong cardinality
// raises invalid-role-arguments ("Role substitution").
func (r *Registry) CreateRoleMapping(protocol string, actualRoles []trace.Role) (map[trace.Role]trace.Role, error) {
	formals, err := r.FormalRoles(protocol)
	if err != nil {
		return nil, err
	}
	if len(formals) != len(actualRoles) {
		return nil, werrors.New(werrors.KindInvalidRoleArguments,
			fmt.Sprintf("protocol %q expects %d role arguments, got %d", protocol, len(formals), len(actualRoles)))
	}
	mapping := make(map[trace.Role]trace.Role, len(formals))
	seen := make(map[trace.Role]bool, len(actualRoles))
	for i, formal := range formals {
		actual := actualRoles[i]
		if seen[actual] {
			return nil, werrors.New(werrors.KindInvalidRoleArguments,
				fmt.Sprintf("protocol %q: actual role %q supplied more than once, mapping must be bijective", protocol, actual))
		}
		seen[actual] = true
		mapping[formal] = actual
	}
	return mapping, nil
}

// findCycle returns the name of a protocol involved in a cycle, or "" if
// the invocation graph (P -> Q iff P has a `do Q` action) is acyclic.
func (r *Registry) findCycle() string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(r.decls))

	var visit func(name string) string
	visit = func(name string) string {
		switch state[name] {
		case visiting:
			return name
		case done:
			return ""
		}
		state[name] = visiting
		d, ok := r.decls[name]
		if ok {
			for _, n := range d.CFG.Nodes() {
				if n.Kind != cfg.NodeAction || n.Action.Kind != cfg.ActionDo {
					continue
				}
				if _, ok := r.decls[n.Action.Protocol]; !ok {
					continue // already reported as protocol-not-found
				}
				if cyc := visit(n.Action.Protocol); cyc != "" {
					return cyc
				}
			}
		}
		state[name] = done
		return ""
	}

	for name := range r.decls {
		if cyc := visit(name); cyc != "" {
			return cyc
		}
	}
	return ""
}
