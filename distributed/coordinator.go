package distributed

import (
	"fmt"

	"github.com/mpst-workbench/core/cfsm"
	"github.com/mpst-workbench/core/event"
	"github.com/mpst-workbench/core/trace"
	"github.com/mpst-workbench/core/werrors"
)

// Coordinator drives one CFSM simulator per declared role under
// asynchronous semantics: it never mutates a role's local state directly,
// only schedules whose turn it is to Step and routes the messages that
// Step drains into the recipient's buffer.
type Coordinator struct {
	roles  []trace.Role
	sims   map[trace.Role]*cfsm.Simulator
	config Config

	globalSteps   int
	scheduleCount map[trace.Role]int
	lastIdx       int // index into roles of the last scheduled role, -1 before the first step

	deadlocked      bool
	reachedMaxSteps bool
	blockedRoles    []trace.Role
	fault           error // sticky: set once route() fails partway through a step

	bus       *event.Bus[trace.EventKind, trace.Event]
	execTrace *trace.ExecutionTrace
}

// New constructs a Coordinator over sims, one CFSM simulator per role in
// roles. Every role in roles must have a corresponding entry in sims.
func New(roles []trace.Role, sims map[trace.Role]*cfsm.Simulator, opts ...Option) (*Coordinator, error) {
	for _, r := range roles {
		if _, ok := sims[r]; !ok {
			return nil, werrors.New(werrors.KindInvalidMessage, fmt.Sprintf("no simulator supplied for declared role %q", r))
		}
	}

	var cfg Config
	for _, o := range opts {
		o(&cfg)
	}
	cfg = cfg.normalized()

	return &Coordinator{
		roles:         append([]trace.Role(nil), roles...),
		sims:          sims,
		config:        cfg,
		scheduleCount: make(map[trace.Role]int, len(roles)),
		lastIdx:       -1,
		bus:           event.NewBus[trace.EventKind, trace.Event](),
		execTrace:     &trace.ExecutionTrace{},
	}, nil
}

// On subscribes to a coordinator-wide event kind, receiving the event of
// each role-local step in schedule order. Buffer enqueue/dequeue events stay
// on the individual role simulators' buses.
func (c *Coordinator) On(kind trace.EventKind, h event.Handler[trace.Event]) event.Subscription {
	return c.bus.On(kind, h)
}

// Off removes every subscriber for kind.
func (c *Coordinator) Off(kind trace.EventKind) { c.bus.Off(kind) }

func (c *Coordinator) emit(evt trace.Event) {
	c.bus.Emit(evt.Kind, evt, nil)
	if c.config.RecordTrace {
		c.execTrace.Append(evt)
	}
}

// GlobalSteps reports how many role-local transitions have executed.
func (c *Coordinator) GlobalSteps() int { return c.globalSteps }

// Deadlocked reports whether the run ended with no enabled role while some
// role remained incomplete.
func (c *Coordinator) Deadlocked() bool { return c.deadlocked }

// ReachedMaxSteps reports whether the step budget was exhausted.
func (c *Coordinator) ReachedMaxSteps() bool { return c.reachedMaxSteps }

// BlockedRoles returns the roles that were neither completed nor enabled
// when a deadlock was detected, in declared order.
func (c *Coordinator) BlockedRoles() []trace.Role {
	out := make([]trace.Role, len(c.blockedRoles))
	copy(out, c.blockedRoles)
	return out
}

// Completed reports whether every role's simulator reached completion.
func (c *Coordinator) Completed() bool {
	for _, r := range c.roles {
		if !c.sims[r].Completed() {
			return false
		}
	}
	return true
}

// RoleTrace returns the per-role execution trace of role, or nil if role
// was not part of this coordinator.
func (c *Coordinator) RoleTrace(role trace.Role) *trace.ExecutionTrace {
	sim, ok := c.sims[role]
	if !ok {
		return nil
	}
	return sim.Trace()
}

// GlobalTrace returns the coordinator's merged, schedule-ordered trace
// (empty unless RecordTrace was enabled).
func (c *Coordinator) GlobalTrace() *trace.ExecutionTrace { return c.execTrace }

// EnabledRoles returns, in declared order, every role whose simulator has
// not completed and has at least one enabled transition.
func (c *Coordinator) EnabledRoles() []trace.Role {
	var out []trace.Role
	for _, r := range c.roles {
		sim := c.sims[r]
		if sim.Completed() {
			continue
		}
		if len(sim.EnabledTransitions()) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Step advances the run by one role-local transition, selecting the role
// per the configured scheduling strategy. Manual strategy must use
// StepManual instead.
func (c *Coordinator) Step() (trace.Event, error) {
	if c.config.SchedulingStrategy == SchedulingManual {
		return trace.Event{}, werrors.New(werrors.KindInvalidMessage, "scheduling strategy is manual: use StepManual(role)")
	}

	enabled, done, err := c.checkProgress()
	if done {
		return trace.Event{}, err
	}

	role := c.selectRole(enabled)
	return c.step(role, enabled)
}

// StepManual advances the run by stepping role specifically, which must be
// part of the currently enabled set.
func (c *Coordinator) StepManual(role trace.Role) (trace.Event, error) {
	enabled, done, err := c.checkProgress()
	if done {
		return trace.Event{}, err
	}
	found := false
	for _, r := range enabled {
		if r == role {
			found = true
			break
		}
	}
	if !found {
		return trace.Event{}, werrors.New(werrors.KindInvalidMessage, fmt.Sprintf("role %q is not currently enabled", role))
	}
	return c.step(role, enabled)
}

// checkProgress validates the step budget and computes the enabled set,
// resolving success or deadlock if nothing is enabled. done is true when
// the caller should stop without stepping; err is then the terminal result,
// a KindAlreadyCompleted error when every role has completed (which
// RunToCompletion reports as nil).
func (c *Coordinator) checkProgress() (enabled []trace.Role, done bool, err error) {
	if c.fault != nil {
		return nil, true, c.fault
	}
	if c.globalSteps >= c.config.MaxSteps {
		c.reachedMaxSteps = true
		return nil, true, werrors.New(werrors.KindMaxSteps, "reached max global steps")
	}

	enabled = c.EnabledRoles()
	if len(enabled) > 0 {
		return enabled, false, nil
	}

	if c.Completed() {
		return nil, true, werrors.New(werrors.KindAlreadyCompleted, "every role's simulator has completed")
	}

	var blocked []trace.Role
	for _, r := range c.roles {
		if !c.sims[r].Completed() {
			blocked = append(blocked, r)
		}
	}
	c.deadlocked = true
	c.blockedRoles = blocked
	return nil, true, werrors.New(werrors.KindDeadlock, fmt.Sprintf("no role has an enabled transition; blocked roles: %v", blocked))
}

func (c *Coordinator) selectRole(enabled []trace.Role) trace.Role {
	switch c.config.SchedulingStrategy {
	case SchedulingFair:
		best := enabled[0]
		for _, r := range enabled[1:] {
			if c.scheduleCount[r] < c.scheduleCount[best] {
				best = r
			}
		}
		return best
	case SchedulingRandom:
		return enabled[c.config.RNG.Intn(len(enabled))]
	default: // SchedulingRoundRobin
		n := len(c.roles)
		for i := 1; i <= n; i++ {
			candidate := c.roles[(c.lastIdx+i)%n]
			for _, r := range enabled {
				if r == candidate {
					return candidate
				}
			}
		}
		return enabled[0] // unreachable: enabled is a subset of c.roles
	}
}

func (c *Coordinator) step(role trace.Role, enabled []trace.Role) (trace.Event, error) {
	sim := c.sims[role]
	evt, err := sim.Step()
	if err != nil {
		return trace.Event{}, werrors.Wrap(werrors.KindNoProgress, fmt.Sprintf("role %q failed to step", role), err)
	}

	if err := c.route(role, sim.OutgoingMessages()); err != nil {
		// role's simulator has already advanced and any messages routed
		// before the failure are already enqueued in their recipients'
		// buffers; there is no snapshot/restore primitive to unwind that
		// partial delivery, so the coordinator is left in a failed state
		// and every subsequent Step/StepManual call returns this same
		// error instead of stepping from inconsistent bookkeeping.
		c.fault = werrors.Wrap(werrors.KindNoProgress, fmt.Sprintf("routing messages from %q", role), err)
		return trace.Event{}, c.fault
	}

	for i, r := range c.roles {
		if r == role {
			c.lastIdx = i
			break
		}
	}
	c.scheduleCount[role]++
	c.globalSteps++

	if c.config.ExploreAllInterleavings {
		if evt.Meta == nil {
			evt.Meta = map[string]any{}
		}
		evt.Meta["enabled_roles"] = enabled
	}
	evt.Step = c.globalSteps
	c.emit(evt)
	return evt, nil
}

// route delivers every message msgs (drained from the stepped role's
// outgoing queue, already in send order) to its recipient's buffer. In
// DeliveryUnordered mode the batch is shuffled before delivery; per-channel
// FIFO at the recipient is unaffected either way, since each recipient
// buffer is keyed per sender regardless of delivery model.
func (c *Coordinator) route(from trace.Role, msgs []trace.Message) error {
	if c.config.DeliveryModel == DeliveryUnordered && len(msgs) > 1 {
		c.config.RNG.Shuffle(len(msgs), func(i, j int) { msgs[i], msgs[j] = msgs[j], msgs[i] })
	}
	for _, m := range msgs {
		recipient, ok := c.sims[m.To]
		if !ok {
			return werrors.New(werrors.KindInvalidMessage, fmt.Sprintf("message from %q addressed to unknown role %q", from, m.To))
		}
		// Buffer-size enforcement (MaxBufferSize) lives on the recipient's
		// own cfsm.Simulator, which was configured with it directly; the
		// coordinator has no second buffer to enforce against.
		if err := recipient.DeliverMessage(m); err != nil {
			return err
		}
	}
	return nil
}

// RunToCompletion loops Step until the run completes, deadlocks, or
// exhausts its step budget. It returns the terminal error, if any (nil on
// success). It must not be used with SchedulingManual.
func (c *Coordinator) RunToCompletion() error {
	if c.config.SchedulingStrategy == SchedulingManual {
		return werrors.New(werrors.KindInvalidMessage, "RunToCompletion cannot drive a manual schedule; call StepManual in a loop")
	}
	for {
		_, err := c.Step()
		if err == nil {
			continue
		}
		if werr, ok := err.(*werrors.Error); ok && werr.Kind == werrors.KindAlreadyCompleted {
			return nil
		}
		return err
	}
}
