package telemetry

import (
	"sync"
	"time"

	"github.com/mpst-workbench/core/event"
	"github.com/mpst-workbench/core/trace"
)

// Source is satisfied by orchestrator.Simulator, cfsm.Simulator, and
// distributed.Coordinator: anything that exposes the shared event.Bus
// subscription surface. Wiring telemetry never needs to know which one it
// is attached to.
type Source interface {
	On(kind trace.EventKind, h event.Handler[trace.Event]) event.Subscription
}

// allEventKinds lists every kind a Source can emit, so Attach can register
// one handler per kind without the bus needing a wildcard subscription.
var allEventKinds = []trace.EventKind{
	trace.EventStepStart, trace.EventStepEnd,
	trace.EventNodeEnter, trace.EventNodeExit,
	trace.EventMessage,
	trace.EventChoicePoint, trace.EventChoiceSelected,
	trace.EventFork, trace.EventJoin,
	trace.EventRecursionEnter, trace.EventRecursionContinue, trace.EventRecursionExit,
	trace.EventSubprotocolEnter, trace.EventSubprotocolExit,
	trace.EventComplete, trace.EventError,
	trace.EventBufferEnqueue, trace.EventBufferDequeue,
	trace.EventSend, trace.EventReceive, trace.EventTau, trace.EventChoice,
	trace.EventFramePush, trace.EventFramePop, trace.EventFrameStep, trace.EventStackReset,
}

// Subscriber attaches a Metrics collector and/or a Tracer to one or more
// Sources, translating every emitted trace.Event into metric observations
// and spans. It tracks the wall-clock time of the last event per role
// itself, purely as an observability side channel: none of it feeds back
// into a simulator's own (logical, time.Now-free) execution trace.
type Subscriber struct {
	runID   string
	metrics *Metrics
	tracer  *Tracer

	mu       sync.Mutex
	lastSeen map[trace.Role]time.Time
	subs     []event.Subscription
}

// NewSubscriber builds a Subscriber that reports under runID. Either
// metrics or tracer may be nil to skip that half of the observability
// surface.
func NewSubscriber(runID string, metrics *Metrics, tracer *Tracer) *Subscriber {
	return &Subscriber{
		runID:    runID,
		metrics:  metrics,
		tracer:   tracer,
		lastSeen: make(map[trace.Role]time.Time),
	}
}

// Attach registers this Subscriber against every event kind src can emit.
// The returned func detaches every handler it just registered.
func (s *Subscriber) Attach(src Source) (detach func()) {
	subs := make([]event.Subscription, 0, len(allEventKinds))
	for _, kind := range allEventKinds {
		subs = append(subs, src.On(kind, s.handle))
	}
	s.mu.Lock()
	s.subs = append(s.subs, subs...)
	s.mu.Unlock()

	return func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}
}

func (s *Subscriber) handle(evt trace.Event) {
	now := time.Now()

	if s.metrics != nil {
		s.mu.Lock()
		prev, ok := s.lastSeen[evt.Role]
		s.lastSeen[evt.Role] = now
		s.mu.Unlock()

		var latency time.Duration
		if ok {
			latency = now.Sub(prev)
		}
		s.metrics.RecordStep(s.runID, evt.Role, evt.Kind, latency)
	}

	if s.tracer != nil {
		s.tracer.Emit(evt)
	}
}
