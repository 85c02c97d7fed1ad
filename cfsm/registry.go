package cfsm

import (
	"fmt"

	"github.com/mpst-workbench/core/trace"
	"github.com/mpst-workbench/core/werrors"
)

// Registry resolves a sub-protocol name and role to the CFSM that role
// should run while inside that sub-protocol, mirroring the orchestrator's
// registry.Registry but keyed on the already-projected per-role machines
// rather than a single CFG.
type Registry struct {
	protocols map[string]map[trace.Role]*CFSM
	formals   map[string][]trace.Role
}

// NewRegistry builds a Registry from a protocol -> {role -> CFSM} map. Each
// protocol's formal role order must be supplied explicitly since a Go map
// has no stable iteration order.
func NewRegistry(protocols map[string]map[trace.Role]*CFSM, formalRoles map[string][]trace.Role) *Registry {
	return &Registry{protocols: protocols, formals: formalRoles}
}

// Resolve returns the CFSM that role runs for protocol.
func (r *Registry) Resolve(protocol string, role trace.Role) (*CFSM, error) {
	roles, ok := r.protocols[protocol]
	if !ok {
		return nil, werrors.New(werrors.KindProtocolNotFound, fmt.Sprintf("protocol %q not found", protocol))
	}
	m, ok := roles[role]
	if !ok {
		return nil, werrors.New(werrors.KindProtocolNotFound, fmt.Sprintf("protocol %q has no CFSM for role %q", protocol, role))
	}
	return m, nil
}

// CreateRoleMapping returns a bijective formal->actual role mapping for
// protocol, identical in spirit to registry.Registry.CreateRoleMapping.
func (r *Registry) CreateRoleMapping(protocol string, actualRoles []trace.Role) (map[trace.Role]trace.Role, error) {
	formals, ok := r.formals[protocol]
	if !ok {
		return nil, werrors.New(werrors.KindProtocolNotFound, fmt.Sprintf("protocol %q not found", protocol))
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
				fmt.Sprintf("protocol %q: actual role %q supplied more than once", protocol, actual))
		}
		seen[actual] = true
		mapping[formal] = actual
	}
	return mapping, nil
}
