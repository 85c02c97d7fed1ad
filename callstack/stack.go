// Package callstack implements the call-stack manager shared by the
// orchestrated CFG simulator and the per-role CFSM simulator for recursion
// and sub-protocol invocation.
package callstack

import (
	"github.com/google/uuid"

	"github.com/mpst-workbench/core/event"
	"github.com/mpst-workbench/core/trace"
	"github.com/mpst-workbench/core/werrors"
)

// Kind discriminates a Frame's purpose ("Call-stack frame").
type Kind string

const (
	KindRecursion   Kind = "recursion"
	KindSubProtocol Kind = "sub-protocol"
)

// Frame is one call-stack entry. EntryNode/ExitNode/Current are
// plain strings rather than a node-id type owned by any one caller: the
// orchestrator stores cfg.NodeID values (themselves string-backed) and the
// CFSM simulator stores cfsm.StateID values, so this package stays free of a
// dependency on either.
type Frame struct {
	ID         string
	Kind       Kind
	Name       string // recursion label or protocol name
	EntryNode  string
	ExitNode   string // return continuation in the parent, zero value for the outermost frame
	Current    string
	SubEntity  any                        // *cfg.CFG for orchestrator frames, *cfsm.CFSM for CFSM frames; set for KindSubProtocol
	RoleMap    map[trace.Role]trace.Role  // formal -> actual, set for KindSubProtocol
	Iterations int                        // set for KindRecursion
	StepCount  int
	EntryTick  int64
}

// Seed describes a frame to push, before Manager assigns it an id and
// bookkeeping fields.
type Seed struct {
	Kind      Kind
	Name      string
	EntryNode string
	ExitNode  string
	SubEntity any
	RoleMap   map[trace.Role]trace.Role
}

// State is the snapshot returned by Manager.State. Callers must not mutate
// the returned Frames slice; it is a shallow copy of live *Frame pointers
// for read efficiency, so a later Step or IncrementIterations on a frame
// that is still on the stack is visible through it. For a snapshot that is
// safe to retain across further Manager calls, use State.Clone.
type State struct {
	Frames      []*Frame
	CurrentID   string // "" when the stack is empty
	Depth       int
	TotalSteps  int
}

// Clone returns a deep copy of s, safe to keep around after further
// Manager mutation (used by orchestrator snapshots, "Snapshots").
func (s State) Clone() State {
	frames := make([]*Frame, len(s.Frames))
	for i, f := range s.Frames {
		clone := *f
		frames[i] = &clone
	}
	return State{Frames: frames, CurrentID: s.CurrentID, Depth: s.Depth, TotalSteps: s.TotalSteps}
}

// Config bounds the depth and iteration count the stack will accept.
type Config struct {
	MaxDepth      int // default 100
	MaxIterations int // default 1000
}

func (c Config) normalized() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 100
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 1000
	}
	return c
}

// Manager is the single stack used for both recursion and sub-protocol
// invocation frames.
type Manager struct {
	cfg    Config
	frames []*Frame
	total  int
	tick   int64
	bus    *event.Bus[trace.EventKind, FrameEvent]
}

// FrameEvent is the payload broadcast for frame-push/frame-pop/frame-step/
// stack-reset ("Events").
type FrameEvent struct {
	Frame    *Frame // nil for stack-reset
	Depth    int
	Duration int // steps the popped frame ran for; only meaningful for frame-pop
}

// New constructs a Manager with the given bounds.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg.normalized(), bus: event.NewBus[trace.EventKind, FrameEvent]()}
}

// On subscribes to one of the call-stack's event kinds. Handler panics are
// caught and swallowed ("Handlers are isolated from stack
// mutation").
func (m *Manager) On(kind trace.EventKind, h event.Handler[FrameEvent]) event.Subscription {
	return m.bus.On(kind, h)
}

func (m *Manager) emit(kind trace.EventKind, evt FrameEvent) {
	m.bus.Emit(kind, evt, nil)
}

// Depth reports how many frames are currently on the stack.
func (m *Manager) Depth() int { return len(m.frames) }

// IsEmpty reports whether the stack has no frames.
func (m *Manager) IsEmpty() bool { return len(m.frames) == 0 }

// Current returns the top-of-stack frame, or nil if empty.
func (m *Manager) Current() *Frame {
	if len(m.frames) == 0 {
		return nil
	}
	return m.frames[len(m.frames)-1]
}

// FrameAtDepth returns the frame at the given 0-indexed depth (0 = bottom
// of the stack), or nil if out of range.
func (m *Manager) FrameAtDepth(depth int) *Frame {
	if depth < 0 || depth >= len(m.frames) {
		return nil
	}
	return m.frames[depth]
}

// FrameByID returns the frame with the given id, or nil if not found.
func (m *Manager) FrameByID(id string) *Frame {
	for _, f := range m.frames {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// Push adds a new frame on top of the stack, enforcing MaxDepth and, for
// recursion frames, MaxIterations starting at 0.
func (m *Manager) Push(seed Seed) (*Frame, error) {
	if len(m.frames) >= m.cfg.MaxDepth {
		return nil, werrors.New(werrors.KindStackOverflow, "call stack exceeded max depth")
	}
	m.tick++
	f := &Frame{
		ID:        uuid.NewString(),
		Kind:      seed.Kind,
		Name:      seed.Name,
		EntryNode: seed.EntryNode,
		ExitNode:  seed.ExitNode,
		Current:   seed.EntryNode,
		SubEntity: seed.SubEntity,
		RoleMap:   seed.RoleMap,
		EntryTick: m.tick,
	}
	m.frames = append(m.frames, f)
	m.emit(trace.EventFramePush, FrameEvent{Frame: f, Depth: len(m.frames)})
	return f, nil
}

// Pop removes and returns the top-of-stack frame.
func (m *Manager) Pop() (*Frame, error) {
	if len(m.frames) == 0 {
		return nil, werrors.New(werrors.KindEmptyStack, "call stack is empty")
	}
	n := len(m.frames) - 1
	f := m.frames[n]
	m.frames = m.frames[:n]
	m.emit(trace.EventFramePop, FrameEvent{Frame: f, Depth: len(m.frames), Duration: f.StepCount})
	return f, nil
}

// Step records a transition to nodeID on the current frame, incrementing
// both the frame's local step count and the manager's running total.
func (m *Manager) Step(nodeID string) error {
	cur := m.Current()
	if cur == nil {
		return werrors.New(werrors.KindEmptyStack, "cannot step an empty call stack")
	}
	cur.Current = nodeID
	cur.StepCount++
	m.total++
	m.emit(trace.EventFrameStep, FrameEvent{Frame: cur, Depth: len(m.frames)})
	return nil
}

// IncrementIterations bumps the current recursion frame's iteration count,
// enforcing MaxIterations. It is a no-op error for non-recursion frames.
func (m *Manager) IncrementIterations() error {
	cur := m.Current()
	if cur == nil {
		return werrors.New(werrors.KindEmptyStack, "cannot increment iterations on an empty call stack")
	}
	if cur.Kind != KindRecursion {
		return nil
	}
	if cur.Iterations+1 > m.cfg.MaxIterations {
		return werrors.New(werrors.KindMaxIterationsExceeded, "recursion exceeded max iterations")
	}
	cur.Iterations++
	return nil
}

// Reset clears the stack entirely.
func (m *Manager) Reset() {
	m.frames = nil
	m.total = 0
	m.tick = 0
	m.emit(trace.EventStackReset, FrameEvent{})
}

// Restore replaces the manager's frames with a deep copy of s, used when a
// simulator restores a prior execution snapshot (reverse stepping).
func (m *Manager) Restore(s State) {
	frames := make([]*Frame, len(s.Frames))
	for i, f := range s.Frames {
		clone := *f
		frames[i] = &clone
	}
	m.frames = frames
	m.total = s.TotalSteps
}

// State returns an immutable-by-convention snapshot of the manager.
func (m *Manager) State() State {
	frames := make([]*Frame, len(m.frames))
	copy(frames, m.frames)
	currentID := ""
	if len(m.frames) > 0 {
		currentID = m.frames[len(m.frames)-1].ID
	}
	return State{Frames: frames, CurrentID: currentID, Depth: len(m.frames), TotalSteps: m.total}
}
