package orchestrator

import (
	"fmt"

	"github.com/mpst-workbench/core/callstack"
	"github.com/mpst-workbench/core/cfg"
	"github.com/mpst-workbench/core/event"
	"github.com/mpst-workbench/core/trace"
	"github.com/mpst-workbench/core/werrors"
)

// Simulator interprets a CFG as the operational semantics of a global
// protocol. Each Step call produces exactly one externally visible event
// or an error, never both.
type Simulator struct {
	root   *cfg.CFG
	config Config

	current         cfg.NodeID
	visited         []cfg.NodeID
	stepCount       int
	completed       bool
	reachedMaxSteps bool

	choice    *ChoiceState
	parallels []*ParallelState
	stack     *callstack.Manager

	bus       *event.Bus[trace.EventKind, trace.Event]
	execTrace *trace.ExecutionTrace
	hist      *history
}

// New constructs a Simulator over c and advances transparently (through
// initial/merge nodes) to the first meaningful state.
func New(c *cfg.CFG, opts ...Option) (*Simulator, error) {
	var cfgOpts Config
	for _, o := range opts {
		o(&cfgOpts)
	}
	cfgOpts = cfgOpts.normalized()

	stack := cfgOpts.CallStack
	if stack == nil {
		stack = callstack.New(callstack.Config{})
	}

	s := &Simulator{
		root:      c,
		config:    cfgOpts,
		current:   c.Initial(),
		stack:     stack,
		bus:       event.NewBus[trace.EventKind, trace.Event](),
		execTrace: &trace.ExecutionTrace{},
		hist:      newHistory(cfgOpts.MaxSnapshots),
	}
	if err := s.skipTransparent(); err != nil {
		return nil, err
	}
	s.hist.push(s.snapshot())
	return s, nil
}

// skipTransparent follows initial/merge nodes without counting them as
// steps, used at construction and never thereafter (normal Step calls
// handle transparent nodes inline).
func (s *Simulator) skipTransparent() error {
	budget := 100
	for budget > 0 {
		budget--
		n, ok := s.root.Node(s.current)
		if !ok {
			return werrors.New(werrors.KindInvalidNode, fmt.Sprintf("node %s not found", s.current))
		}
		if n.Kind != cfg.NodeInitial && n.Kind != cfg.NodeMerge {
			return nil
		}
		out := s.root.Out(n.ID)
		if len(out) == 0 {
			return werrors.New(werrors.KindNoTransition, fmt.Sprintf("node %s has no outgoing edge", n.ID))
		}
		s.current = out[0].To
	}
	return werrors.New(werrors.KindInternalBudgetExceeded, "exceeded structural traversal budget constructing simulator")
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

// CurrentNode reports the node the simulator is positioned at.
func (s *Simulator) CurrentNode() cfg.NodeID { return s.current }

// Completed reports whether the simulator reached terminal.
func (s *Simulator) Completed() bool { return s.completed }

// ReachedMaxSteps reports whether the step budget was exhausted.
func (s *Simulator) ReachedMaxSteps() bool { return s.reachedMaxSteps }

// StepCount reports how many externally visible steps have executed.
func (s *Simulator) StepCount() int { return s.stepCount }

// VisitedNodes returns every node visited by Step so far, including merge
// nodes crossed transparently mid-step, in visitation order. The initial
// and merge nodes skipped at construction are not included.
func (s *Simulator) VisitedNodes() []cfg.NodeID {
	out := make([]cfg.NodeID, len(s.visited))
	copy(out, s.visited)
	return out
}

// PendingChoice returns the choice awaiting resolution, or nil.
func (s *Simulator) PendingChoice() *ChoiceState { return s.choice }

// Trace returns the recorded execution trace (empty unless RecordTrace was
// enabled).
func (s *Simulator) Trace() *trace.ExecutionTrace { return s.execTrace }

// snapshot captures the simulator's full mutable state for reverse stepping.
func (s *Simulator) snapshot() Snapshot {
	visited := make([]cfg.NodeID, len(s.visited))
	copy(visited, s.visited)

	var choice ChoiceState
	if s.choice != nil {
		choice = *s.choice
	}

	return Snapshot{
		CurrentNode:     s.current,
		VisitedNodes:    visited,
		StepCount:       s.stepCount,
		Completed:       s.completed,
		ReachedMaxSteps: s.reachedMaxSteps,
		Choice:          choice,
		Parallels:       cloneParallels(s.parallels),
		CallStack:       s.stack.State().Clone(),
	}
}

// restore resets the simulator to a previously captured Snapshot.
func (s *Simulator) restore(snap Snapshot) {
	s.current = snap.CurrentNode
	s.visited = append([]cfg.NodeID(nil), snap.VisitedNodes...)
	s.stepCount = snap.StepCount
	s.completed = snap.Completed
	s.reachedMaxSteps = snap.ReachedMaxSteps
	if snap.Choice.NodeID != "" {
		c := snap.Choice
		s.choice = &c
	} else {
		s.choice = nil
	}
	s.parallels = cloneParallels(snap.Parallels)
	s.stack.Restore(snap.CallStack)
}

// StepBack rewinds the simulator to the state immediately before the most
// recent Step, returning false if there is no earlier recorded state.
func (s *Simulator) StepBack() bool {
	snap, ok := s.hist.back()
	if !ok {
		return false
	}
	s.restore(snap)
	return true
}

// StepForward re-applies a state previously undone by StepBack, returning
// false if there is no later recorded state.
func (s *Simulator) StepForward() bool {
	snap, ok := s.hist.forward()
	if !ok {
		return false
	}
	s.restore(snap)
	return true
}

// activeCFG returns the CFG currently being interpreted: the nearest
// enclosing sub-protocol frame's CFG, or the root CFG if none.
func (s *Simulator) activeCFG() *cfg.CFG {
	for i := s.stack.Depth() - 1; i >= 0; i-- {
		f := s.stack.FrameAtDepth(i)
		if f.Kind == callstack.KindSubProtocol {
			return f.SubEntity.(*cfg.CFG)
		}
	}
	return s.root
}

// nearestRoleMap returns the formal->actual role mapping of the nearest
// enclosing sub-protocol frame, or nil at the top level.
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

func (s *Simulator) markVisited(id cfg.NodeID) {
	s.visited = append(s.visited, id)
}

// afterParallelEvent round-robins control to the next branch of the
// innermost active parallel after an ordinary node inside a branch
// produced a visible event.
func (s *Simulator) afterParallelEvent() {
	if len(s.parallels) == 0 {
		return
	}
	ps := s.parallels[len(s.parallels)-1]
	ps.Branches[ps.Active].Current = s.current
	ps.Active = (ps.Active + 1) % len(ps.Branches)
	s.current = ps.Branches[ps.Active].Current
}

// Step advances the simulator by one externally visible event.
func (s *Simulator) Step() (trace.Event, error) {
	if s.completed {
		return trace.Event{}, werrors.New(werrors.KindAlreadyCompleted, "simulation already completed")
	}
	if s.choice != nil {
		return trace.Event{}, werrors.New(werrors.KindChoiceRequired, "a choice is pending; call Choose")
	}
	if s.stepCount >= s.config.MaxSteps {
		s.reachedMaxSteps = true
		return trace.Event{}, werrors.New(werrors.KindMaxStepsReached, "reached max steps")
	}

	evt, err := s.dispatchLoop()
	if err != nil {
		s.emit(trace.Event{Kind: trace.EventError, Meta: map[string]any{"error": err.Error()}})
		return trace.Event{}, err
	}

	s.stepCount++
	evt.Step = s.stepCount
	s.hist.push(s.snapshot())
	s.emit(evt)
	return evt, nil
}

// dispatchLoop performs the smallest sequence of node transitions that
// produces one externally visible event, bounded by a per-step structural
// traversal budget that guards against pathological CFGs.
func (s *Simulator) dispatchLoop() (trace.Event, error) {
	budget := 100
	for budget > 0 {
		budget--
		active := s.activeCFG()
		n, ok := active.Node(s.current)
		if !ok {
			return trace.Event{}, werrors.New(werrors.KindInvalidNode, fmt.Sprintf("node %s not found", s.current))
		}
		s.markVisited(n.ID)

		switch n.Kind {
		case cfg.NodeInitial, cfg.NodeMerge:
			out := active.Out(n.ID)
			if len(out) == 0 {
				return trace.Event{}, werrors.New(werrors.KindNoTransition, fmt.Sprintf("node %s has no outgoing edge", n.ID))
			}
			s.current = out[0].To
			continue
		case cfg.NodeJoin:
			evt, halted, err := s.dispatchJoin(active, n)
			if err != nil {
				return trace.Event{}, err
			}
			if !halted {
				continue
			}
			return evt, nil
		case cfg.NodeAction:
			return s.dispatchAction(active, n)
		case cfg.NodeBranch:
			return s.dispatchBranch(active, n)
		case cfg.NodeRecursive:
			return s.dispatchRecursive(active, n)
		case cfg.NodeFork:
			return s.dispatchFork(active, n)
		case cfg.NodeTerminal:
			return s.dispatchTerminal(active, n)
		default:
			return trace.Event{}, werrors.New(werrors.KindInvalidNode, fmt.Sprintf("unknown node kind at %s", n.ID))
		}
	}
	return trace.Event{}, werrors.New(werrors.KindInternalBudgetExceeded, "exceeded per-step structural traversal budget")
}

func (s *Simulator) dispatchAction(active *cfg.CFG, n *cfg.Node) (trace.Event, error) {
	a := n.Action
	switch a.Kind {
	case cfg.ActionMessage:
		from := s.mapRole(a.From)
		to := s.mapRole(a.To[0])
		msg := trace.NewMessage(from, to, a.Label, a.PayloadType)
		evt := trace.Event{Kind: trace.EventMessage, Role: from, NodeID: string(n.ID), Message: &msg, Label: a.Label}
		if len(a.To) > 1 {
			recipients := make([]trace.Role, len(a.To))
			for i, r := range a.To {
				recipients[i] = s.mapRole(r)
			}
			evt.Meta = map[string]any{"recipients": recipients}
		}
		if err := s.advanceSingle(active, n.ID); err != nil {
			return trace.Event{}, err
		}
		if len(s.parallels) > 0 {
			s.afterParallelEvent()
		}
		return evt, nil

	case cfg.ActionDo:
		if s.config.Registry == nil {
			return trace.Event{}, werrors.New(werrors.KindSubprotocolMissingRegistry, "action invokes a sub-protocol but no registry was configured")
		}
		actuals := make([]trace.Role, len(a.RoleArguments))
		for i, r := range a.RoleArguments {
			actuals[i] = s.mapRole(r)
		}
		subCFG, err := s.config.Registry.Resolve(a.Protocol)
		if err != nil {
			return trace.Event{}, err
		}
		mapping, err := s.config.Registry.CreateRoleMapping(a.Protocol, actuals)
		if err != nil {
			return trace.Event{}, err
		}
		out := active.Out(n.ID)
		if len(out) == 0 {
			return trace.Event{}, werrors.New(werrors.KindNoTransition, fmt.Sprintf("node %s has no outgoing edge", n.ID))
		}
		if _, err := s.stack.Push(callstack.Seed{
			Kind: callstack.KindSubProtocol, Name: a.Protocol, EntryNode: string(n.ID),
			ExitNode: string(out[0].To), SubEntity: subCFG, RoleMap: mapping,
		}); err != nil {
			return trace.Event{}, err
		}
		s.current = subCFG.Initial()
		evt := trace.Event{Kind: trace.EventSubprotocolEnter, NodeID: string(n.ID), Meta: map[string]any{"protocol": a.Protocol}}
		return evt, nil

	default:
		// Tau, create_participants, invitation, dynamic_role_declaration:
		// administrative actions with no dedicated dispatch of their own.
		evt := trace.Event{Kind: trace.EventTau, NodeID: string(n.ID), Meta: map[string]any{"action_kind": string(a.Kind)}}
		if err := s.advanceSingle(active, n.ID); err != nil {
			return trace.Event{}, err
		}
		if len(s.parallels) > 0 {
			s.afterParallelEvent()
		}
		return evt, nil
	}
}

func (s *Simulator) advanceSingle(active *cfg.CFG, id cfg.NodeID) error {
	out := active.Out(id)
	if len(out) == 0 {
		return werrors.New(werrors.KindNoTransition, fmt.Sprintf("node %s has no outgoing edge", id))
	}
	s.current = out[0].To
	return nil
}

func branchEdgesOf(c *cfg.CFG, id cfg.NodeID) []cfg.Edge {
	var out []cfg.Edge
	for _, e := range c.Out(id) {
		if e.Kind == cfg.EdgeBranch {
			out = append(out, e)
		}
	}
	return out
}

func (s *Simulator) dispatchBranch(active *cfg.CFG, n *cfg.Node) (trace.Event, error) {
	previews := previewBranches(active, n, s.config.PreviewLimit)

	if s.config.ChoiceStrategy == ChoiceManual {
		s.choice = &ChoiceState{NodeID: n.ID, Pending: previews, Selected: -1}
		return trace.Event{
			Kind: trace.EventChoicePoint, NodeID: string(n.ID), Role: n.At,
			Meta: map[string]any{"choices": previews},
		}, nil
	}

	idx := 0
	if s.config.ChoiceStrategy == ChoiceRandom && len(previews) > 0 {
		idx = s.config.RNG.Intn(len(previews))
	}
	edges := branchEdgesOf(active, n.ID)
	if idx >= len(edges) {
		return trace.Event{}, werrors.New(werrors.KindInvalidChoice, "auto choice strategy selected an out-of-range branch")
	}
	s.current = edges[idx].To
	evt := trace.Event{
		Kind: trace.EventChoiceSelected, NodeID: string(n.ID), Role: n.At,
		Label: trace.Label(edges[idx].Label), Meta: map[string]any{"index": idx},
	}
	if len(s.parallels) > 0 {
		s.afterParallelEvent()
	}
	return evt, nil
}

// Choose resolves a pending manual choice by index.
func (s *Simulator) Choose(i int) error {
	if s.choice == nil {
		return werrors.New(werrors.KindInvalidChoice, "no choice is pending")
	}
	if i < 0 || i >= len(s.choice.Pending) {
		return werrors.New(werrors.KindInvalidChoice, fmt.Sprintf("choice index %d out of range [0,%d)", i, len(s.choice.Pending)))
	}
	if s.stepCount >= s.config.MaxSteps {
		s.reachedMaxSteps = true
		return werrors.New(werrors.KindMaxStepsReached, "reached max steps")
	}
	active := s.activeCFG()
	edges := branchEdgesOf(active, s.choice.NodeID)
	nodeID := s.choice.NodeID
	label := edges[i].Label

	s.current = edges[i].To
	s.choice = nil
	if len(s.parallels) > 0 {
		s.afterParallelEvent()
	}

	s.stepCount++
	evt := trace.Event{
		Kind: trace.EventChoiceSelected, Step: s.stepCount, NodeID: string(nodeID),
		Label: trace.Label(label), Meta: map[string]any{"index": i},
	}
	s.hist.push(s.snapshot())
	s.emit(evt)
	return nil
}

func (s *Simulator) dispatchRecursive(active *cfg.CFG, n *cfg.Node) (trace.Event, error) {
	top := s.stack.Current()
	if top != nil && top.Kind == callstack.KindRecursion && top.EntryNode == string(n.ID) {
		if err := s.stack.IncrementIterations(); err != nil {
			return trace.Event{}, err
		}
		if err := s.stack.Step(string(n.ID)); err != nil {
			return trace.Event{}, err
		}
		if err := s.advanceSingle(active, n.ID); err != nil {
			return trace.Event{}, err
		}
		evt := trace.Event{Kind: trace.EventRecursionContinue, NodeID: string(n.ID), Label: trace.Label(n.Label)}
		if len(s.parallels) > 0 {
			s.afterParallelEvent()
		}
		return evt, nil
	}

	if _, err := s.stack.Push(callstack.Seed{Kind: callstack.KindRecursion, Name: n.Label, EntryNode: string(n.ID)}); err != nil {
		return trace.Event{}, err
	}
	if err := s.advanceSingle(active, n.ID); err != nil {
		return trace.Event{}, err
	}
	evt := trace.Event{Kind: trace.EventRecursionEnter, NodeID: string(n.ID), Label: trace.Label(n.Label)}
	if len(s.parallels) > 0 {
		s.afterParallelEvent()
	}
	return evt, nil
}

func findJoin(c *cfg.CFG, parallelID string) (cfg.NodeID, bool) {
	for _, n := range c.Nodes() {
		if n.Kind == cfg.NodeJoin && n.ParallelID == parallelID {
			return n.ID, true
		}
	}
	return "", false
}

func (s *Simulator) dispatchFork(active *cfg.CFG, n *cfg.Node) (trace.Event, error) {
	var branches []*BranchState
	for _, e := range active.Out(n.ID) {
		if e.Kind != cfg.EdgeFork {
			continue
		}
		branches = append(branches, &BranchState{Start: e.To, Current: e.To})
	}
	if len(branches) == 0 {
		return trace.Event{}, werrors.New(werrors.KindParallelError, fmt.Sprintf("fork %s has no branches", n.ID))
	}
	join, ok := findJoin(active, n.ParallelID)
	if !ok {
		return trace.Event{}, werrors.New(werrors.KindParallelError, fmt.Sprintf("fork %s has no matching join", n.ID))
	}

	s.parallels = append(s.parallels, &ParallelState{ParallelID: n.ParallelID, Join: join, Branches: branches, Active: 0})
	s.current = branches[0].Current

	return trace.Event{
		Kind: trace.EventFork, NodeID: string(n.ID),
		Meta: map[string]any{"parallel_id": n.ParallelID, "branch_count": len(branches)},
	}, nil
}

func (s *Simulator) dispatchJoin(active *cfg.CFG, n *cfg.Node) (trace.Event, bool, error) {
	if len(s.parallels) == 0 {
		return trace.Event{}, false, werrors.New(werrors.KindParallelError, fmt.Sprintf("reached join %s with no active parallel", n.ID))
	}
	ps := s.parallels[len(s.parallels)-1]
	ps.Branches[ps.Active].Completed = true
	ps.Branches[ps.Active].Current = n.ID

	next := ps.nextIncomplete(ps.Active)
	if next == -1 {
		s.parallels = s.parallels[:len(s.parallels)-1]
		if err := s.advanceSingle(active, n.ID); err != nil {
			return trace.Event{}, false, err
		}
		evt := trace.Event{Kind: trace.EventJoin, NodeID: string(n.ID), Meta: map[string]any{"parallel_id": ps.ParallelID}}
		return evt, true, nil
	}
	ps.Active = next
	s.current = ps.Branches[next].Current
	return trace.Event{}, false, nil
}

func (s *Simulator) dispatchTerminal(active *cfg.CFG, n *cfg.Node) (trace.Event, error) {
	top := s.stack.Current()
	if top == nil {
		s.completed = true
		return trace.Event{Kind: trace.EventComplete, NodeID: string(n.ID)}, nil
	}

	switch top.Kind {
	case callstack.KindSubProtocol:
		if subCFG, ok := top.SubEntity.(*cfg.CFG); !ok || subCFG != active {
			return trace.Event{}, werrors.New(werrors.KindInvalidNode, "terminal reached while call stack top references a different sub-protocol")
		}
		popped, err := s.stack.Pop()
		if err != nil {
			return trace.Event{}, err
		}
		s.current = cfg.NodeID(popped.ExitNode)
		return trace.Event{Kind: trace.EventSubprotocolExit, NodeID: string(n.ID), Meta: map[string]any{"protocol": popped.Name}}, nil
	case callstack.KindRecursion:
		popped, err := s.stack.Pop()
		if err != nil {
			return trace.Event{}, err
		}
		return trace.Event{Kind: trace.EventRecursionExit, NodeID: string(n.ID), Label: trace.Label(popped.Name)}, nil
	default:
		return trace.Event{}, werrors.New(werrors.KindInvalidNode, "unknown call-stack frame kind at terminal")
	}
}
