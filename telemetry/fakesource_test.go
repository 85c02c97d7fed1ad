package telemetry

import (
	"github.com/mpst-workbench/core/event"
	"github.com/mpst-workbench/core/trace"
)

// fakeSource is a minimal Source for exercising Attach/detach without
// pulling in a real simulator or coordinator.
type fakeSource struct {
	bus *event.Bus[trace.EventKind, trace.Event]
}

func newFakeSource() *fakeSource {
	return &fakeSource{bus: event.NewBus[trace.EventKind, trace.Event]()}
}

func (f *fakeSource) On(kind trace.EventKind, h event.Handler[trace.Event]) event.Subscription {
	return f.bus.On(kind, h)
}

func (f *fakeSource) emit(evt trace.Event) {
	f.bus.Emit(evt.Kind, evt, nil)
}
