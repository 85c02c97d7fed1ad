package cfg

import "github.com/mpst-workbench/core/trace"

// ActionKind discriminates the Action union ("Action variants").
type ActionKind string

const (
	ActionMessage                ActionKind = "message"
	ActionTau                    ActionKind = "tau"
	ActionCreateParticipants     ActionKind = "create_participants"
	ActionInvitation             ActionKind = "invitation"
	ActionDynamicRoleDeclaration ActionKind = "dynamic_role_declaration"
	ActionDo                     ActionKind = "do"
)

// Action is the closed union of things an `action` node can carry. Only the
// fields relevant to Kind are populated; the dispatch in orchestrator/cfsm
// must handle every ActionKind exhaustively ("Polymorphism over
// node/action/event kinds").
type Action struct {
	Kind ActionKind

	// ActionMessage.
	From        trace.Role
	To          []trace.Role // single recipient => len(To) == 1
	Label       trace.Label
	PayloadType string

	// ActionCreateParticipants.
	Creator      trace.Role
	RoleName     trace.Role
	InstanceName string

	// ActionInvitation.
	Inviter trace.Role
	Invitee trace.Role

	// ActionDynamicRoleDeclaration reuses RoleName above.

	// ActionDo.
	Protocol      string
	RoleArguments []trace.Role // actual roles, positional, matching the sub-protocol's formal roles
}

// IsMulticast reports whether a message action targets more than one role.
func (a Action) IsMulticast() bool {
	return a.Kind == ActionMessage && len(a.To) > 1
}

// IsSelfCommunication reports whether from participates as both sender and
// a recipient of the same message action.
func (a Action) IsSelfCommunication() bool {
	if a.Kind != ActionMessage {
		return false
	}
	for _, to := range a.To {
		if to == a.From {
			return true
		}
	}
	return false
}

// Participants returns every role this action names, in a stable order,
// used by check_connectedness.
func (a Action) Participants() []trace.Role {
	switch a.Kind {
	case ActionMessage:
		out := make([]trace.Role, 0, 1+len(a.To))
		out = append(out, a.From)
		out = append(out, a.To...)
		return out
	case ActionCreateParticipants:
		return []trace.Role{a.Creator, a.RoleName}
	case ActionInvitation:
		return []trace.Role{a.Inviter, a.Invitee}
	case ActionDynamicRoleDeclaration:
		return []trace.Role{a.RoleName}
	case ActionDo:
		return append([]trace.Role(nil), a.RoleArguments...)
	default:
		return nil
	}
}
