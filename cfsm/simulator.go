package cfsm

import (
	"fmt"

	"github.com/mpst-workbench/core/callstack"
	"github.com/mpst-workbench/core/event"
	"github.com/mpst-workbench/core/trace"
	"github.com/mpst-workbench/core/werrors"
)

// Simulator executes one role's CFSM under asynchronous semantics: send is
// always enabled (messages are buffered externally via OutgoingMessages),
// receive is enabled only when its expected label is at the head of the
// matching sender's queue, and tau/choice-marker are always enabled.
type Simulator struct {
	role   trace.Role
	root   *CFSM
	config Config

	current         StateID
	visited         []StateID
	stepCount       int
	completed       bool
	reachedMaxSteps bool

	buffers  map[trace.Role]*trace.Buffer
	outgoing []trace.Message

	enabled      []Transition
	pendingIndex int // -1 unless a manual selection has been made

	stack     *callstack.Manager
	bus       *event.Bus[trace.EventKind, trace.Event]
	execTrace *trace.ExecutionTrace
}

// New constructs a Simulator positioned at m's initial state.
func New(m *CFSM, opts ...Option) *Simulator {
	var cfgOpts Config
	for _, o := range opts {
		o(&cfgOpts)
	}
	cfgOpts = cfgOpts.normalized()

	stack := cfgOpts.CallStack
	if stack == nil {
		stack = callstack.New(callstack.Config{})
	}

	return &Simulator{
		role:         m.Role,
		root:         m,
		config:       cfgOpts,
		current:      m.Initial,
		buffers:      make(map[trace.Role]*trace.Buffer),
		pendingIndex: -1,
		stack:        stack,
		bus:          event.NewBus[trace.EventKind, trace.Event](),
		execTrace:    &trace.ExecutionTrace{},
	}
}

// On subscribes to a simulator event kind.
func (s *Simulator) On(kind trace.EventKind, h event.Handler[trace.Event]) event.Subscription {
	return s.bus.On(kind, h)
}

// Off removes every subscriber for kind.
func (s *Simulator) Off(kind trace.EventKind) { s.bus.Off(kind) }

func (s *Simulator) emit(evt trace.Event) {
	s.bus.Emit(evt.Kind, evt, nil)
	if s.config.RecordTrace {
		s.execTrace.Append(evt)
	}
}

// Role reports the role this simulator executes.
func (s *Simulator) Role() trace.Role { return s.role }

// CurrentState reports the simulator's current local state.
func (s *Simulator) CurrentState() StateID { return s.current }

// Completed reports whether the simulator reached a terminal state.
func (s *Simulator) Completed() bool { return s.completed }

// ReachedMaxSteps reports whether the step budget was exhausted.
func (s *Simulator) ReachedMaxSteps() bool { return s.reachedMaxSteps }

// StepCount reports how many transitions have executed.
func (s *Simulator) StepCount() int { return s.stepCount }

// VisitedStates returns every state visited so far, in order.
func (s *Simulator) VisitedStates() []StateID {
	out := make([]StateID, len(s.visited))
	copy(out, s.visited)
	return out
}

// Trace returns the recorded execution trace (empty unless RecordTrace was
// enabled).
func (s *Simulator) Trace() *trace.ExecutionTrace { return s.execTrace }

// activeCFSM returns the CFSM currently being executed: the nearest
// enclosing sub-protocol frame's CFSM, or the root CFSM if none.
func (s *Simulator) activeCFSM() *CFSM {
	for i := s.stack.Depth() - 1; i >= 0; i-- {
		f := s.stack.FrameAtDepth(i)
		if f.Kind == callstack.KindSubProtocol {
			return f.SubEntity.(*CFSM)
		}
	}
	return s.root
}

func (s *Simulator) nearestRoleMap() map[trace.Role]trace.Role {
	for i := s.stack.Depth() - 1; i >= 0; i-- {
		f := s.stack.FrameAtDepth(i)
		if f.Kind == callstack.KindSubProtocol {
			return f.RoleMap
		}
	}
	return nil
}

func (s *Simulator) mapRole(r trace.Role) trace.Role {
	rm := s.nearestRoleMap()
	if rm == nil {
		return r
	}
	if actual, ok := rm[r]; ok {
		return actual
	}
	return r
}

// formalRoleFor inverts a formal->actual role mapping to find the formal
// role bound to actual. CreateRoleMapping guarantees the mapping is
// injective, so at most one formal role can match.
func formalRoleFor(mapping map[trace.Role]trace.Role, actual trace.Role) (trace.Role, bool) {
	for formal, a := range mapping {
		if a == actual {
			return formal, true
		}
	}
	return "", false
}

// DeliverMessage appends m to the buffer keyed by its sender, enforcing
// MaxBufferSize if configured.
func (s *Simulator) DeliverMessage(m trace.Message) error {
	buf, ok := s.buffers[m.From]
	if !ok {
		buf = &trace.Buffer{}
		s.buffers[m.From] = buf
	}
	if s.config.MaxBufferSize > 0 && buf.Len() >= s.config.MaxBufferSize {
		return werrors.New(werrors.KindBufferOverflow, fmt.Sprintf("buffer for sender %q exceeded max size %d", m.From, s.config.MaxBufferSize))
	}
	buf.Enqueue(m)
	s.emit(trace.Event{Kind: trace.EventBufferEnqueue, Role: s.role, Message: &m, Label: m.Label})
	return nil
}

// EnabledTransitions returns every transition enabled from the current
// state: every send/tau/choice-marker/sub-protocol, plus any receive whose
// expected (from, label) matches the head of that sender's buffer. Only the
// head of a buffer is ever consulted — a receive can never skip an
// unmatched earlier message to reach a later match, which is what
// preserves per-channel FIFO reception order regardless of VerifyFIFO;
// VerifyFIFO additionally asserts this invariant explicitly at dequeue time
// as a defensive internal check.
func (s *Simulator) EnabledTransitions() []Transition {
	active := s.activeCFSM()
	var out []Transition
	for _, t := range active.Out(s.current) {
		switch t.Kind {
		case TransitionSend, TransitionTau, TransitionChoiceMarker, TransitionSubProtocol:
			out = append(out, t)
		case TransitionReceive:
			from := s.mapRole(t.Peer)
			buf, ok := s.buffers[from]
			if !ok {
				continue
			}
			head, ok := buf.Peek()
			if !ok {
				continue
			}
			if head.Label == t.Label {
				out = append(out, t)
			}
		}
	}
	return out
}

// SelectTransition pre-selects index i of the most recently computed
// enabled-transition set for a manual-strategy Step.
func (s *Simulator) SelectTransition(i int) error {
	if i < 0 || i >= len(s.enabled) {
		return werrors.New(werrors.KindInvalidState, fmt.Sprintf("transition index %d out of range [0,%d)", i, len(s.enabled)))
	}
	s.pendingIndex = i
	return nil
}

// PendingTransitions returns the enabled-transition set materialized by the
// most recent manual-strategy Step call awaiting SelectTransition, or nil.
func (s *Simulator) PendingTransitions() []Transition {
	if s.pendingIndex != -1 {
		return nil
	}
	return s.enabled
}

// Step executes one transition, or returns transition-required if the
// configured strategy is manual and no selection has been made yet.
func (s *Simulator) Step() (trace.Event, error) {
	if s.completed {
		return trace.Event{}, werrors.New(werrors.KindInvalidState, "simulation already completed")
	}
	if s.stepCount >= s.config.MaxSteps {
		s.reachedMaxSteps = true
		return trace.Event{}, werrors.New(werrors.KindMaxSteps, "reached max steps")
	}

	enabled := s.EnabledTransitions()
	if len(enabled) == 0 {
		return trace.Event{}, werrors.New(werrors.KindNoEnabledTransitions, fmt.Sprintf("no enabled transitions from state %q", s.current))
	}

	var chosen Transition
	switch s.config.TransitionStrategy {
	case TransitionManual:
		if s.pendingIndex == -1 {
			s.enabled = enabled
			return trace.Event{}, werrors.New(werrors.KindTransitionRequired, "a transition must be selected via SelectTransition")
		}
		chosen = enabled[s.pendingIndex]
		s.pendingIndex = -1
		s.enabled = nil
	case TransitionRandom:
		chosen = enabled[s.config.RNG.Intn(len(enabled))]
	default:
		chosen = enabled[0]
	}

	s.visited = append(s.visited, s.current)
	evt, err := s.execute(chosen)
	if err != nil {
		return trace.Event{}, err
	}
	if err := s.checkCompletion(); err != nil {
		return trace.Event{}, err
	}

	s.stepCount++
	evt.Step = s.stepCount
	s.emit(evt)
	return evt, nil
}

func (s *Simulator) execute(t Transition) (trace.Event, error) {
	switch t.Kind {
	case TransitionSend:
		to := s.mapRole(t.Peer)
		msg := trace.NewMessage(s.role, to, t.Label, t.PayloadType)
		s.outgoing = append(s.outgoing, msg)
		s.current = t.To
		return trace.Event{Kind: trace.EventSend, Role: s.role, Message: &msg, Label: t.Label}, nil

	case TransitionReceive:
		from := s.mapRole(t.Peer)
		buf := s.buffers[from]
		msg, ok := buf.Dequeue()
		if !ok {
			return trace.Event{}, werrors.New(werrors.KindFIFOViolation, fmt.Sprintf("expected a message from %q but the buffer was empty", from))
		}
		if s.config.VerifyFIFO && msg.Label != t.Label {
			return trace.Event{}, werrors.New(werrors.KindFIFOViolation, fmt.Sprintf("dequeued %q from %q but transition expected %q; FIFO head no longer matches EnabledTransitions", msg.Label, from, t.Label))
		}
		s.current = t.To
		s.emit(trace.Event{Kind: trace.EventBufferDequeue, Role: s.role, Message: &msg, Label: msg.Label})
		return trace.Event{Kind: trace.EventReceive, Role: s.role, Message: &msg, Label: t.Label}, nil

	case TransitionTau:
		s.current = t.To
		return trace.Event{Kind: trace.EventTau, Role: s.role}, nil

	case TransitionChoiceMarker:
		s.current = t.To
		return trace.Event{Kind: trace.EventChoice, Role: s.role, Label: t.Label}, nil

	case TransitionSubProtocol:
		if s.config.Registry == nil {
			return trace.Event{}, werrors.New(werrors.KindSubprotocolMissingRegistry, "transition invokes a sub-protocol but no registry was configured")
		}
		actuals := make([]trace.Role, len(t.RoleArguments))
		for i, r := range t.RoleArguments {
			actuals[i] = s.mapRole(r)
		}
		mapping, err := s.config.Registry.CreateRoleMapping(t.Protocol, actuals)
		if err != nil {
			return trace.Event{}, err
		}
		formalSelf, ok := formalRoleFor(mapping, s.role)
		if !ok {
			return trace.Event{}, werrors.New(werrors.KindInvalidRoleArguments, fmt.Sprintf("role %q is not a participant in sub-protocol %q", s.role, t.Protocol))
		}
		sub, err := s.config.Registry.Resolve(t.Protocol, formalSelf)
		if err != nil {
			return trace.Event{}, err
		}
		if _, err := s.stack.Push(callstack.Seed{
			Kind: callstack.KindSubProtocol, Name: t.Protocol, EntryNode: string(s.current),
			ExitNode: string(t.To), SubEntity: sub, RoleMap: mapping,
		}); err != nil {
			return trace.Event{}, err
		}
		s.current = sub.Initial
		return trace.Event{Kind: trace.EventSubprotocolEnter, Role: s.role, Meta: map[string]any{"protocol": t.Protocol}}, nil

	default:
		return trace.Event{}, werrors.New(werrors.KindInvalidState, fmt.Sprintf("unknown transition kind %q", t.Kind))
	}
}

// checkCompletion evaluates whether the current state is terminal, popping
// exactly one call-stack frame per call (mirroring the orchestrator's
// terminal dispatch) so a terminal reached inside a sub-protocol resumes
// the parent instead of completing the whole simulator.
func (s *Simulator) checkCompletion() error {
	active := s.activeCFSM()
	if !active.IsTerminal(s.current) {
		return nil
	}
	top := s.stack.Current()
	if top == nil {
		s.completed = true
		return nil
	}
	if top.Kind != callstack.KindSubProtocol {
		return werrors.New(werrors.KindInvalidState, "unexpected call-stack frame kind at terminal state")
	}
	popped, err := s.stack.Pop()
	if err != nil {
		return err
	}
	s.current = StateID(popped.ExitNode)
	return nil
}

// OutgoingMessages drains and returns every message queued by send
// transitions since the last call, for the coordinator to route.
func (s *Simulator) OutgoingMessages() []trace.Message {
	out := s.outgoing
	s.outgoing = nil
	return out
}

// Reset restores the simulator to its initial state, clearing buffers,
// the outgoing queue, and recorded history.
func (s *Simulator) Reset() {
	s.current = s.root.Initial
	s.visited = nil
	s.stepCount = 0
	s.completed = false
	s.reachedMaxSteps = false
	s.buffers = make(map[trace.Role]*trace.Buffer)
	s.outgoing = nil
	s.enabled = nil
	s.pendingIndex = -1
	s.stack.Reset()
	s.execTrace = &trace.ExecutionTrace{}
}
