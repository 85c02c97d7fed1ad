package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mpst-workbench/core/cfsm"
	"github.com/mpst-workbench/core/distributed"
	"github.com/mpst-workbench/core/trace"
)

func sumCounter(t *testing.T, vec *prometheus.CounterVec) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 64)
	vec.Collect(ch)
	close(ch)
	var total float64
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			t.Fatalf("Write: %v", err)
		}
		total += dm.GetCounter().GetValue()
	}
	return total
}

func TestSubscriber_Attach_RecordsMetricsAndSpansFromCoordinator(t *testing.T) {
	sender := cfsm.NewCFSM("Client", []cfsm.StateID{"c0", "c1"}, "c0", []cfsm.StateID{"c1"}, []cfsm.Transition{
		{From: "c0", To: "c1", Kind: cfsm.TransitionSend, Peer: "Server", Label: "Request"},
	})
	receiver := cfsm.NewCFSM("Server", []cfsm.StateID{"s0", "s1"}, "s0", []cfsm.StateID{"s1"}, []cfsm.Transition{
		{From: "s0", To: "s1", Kind: cfsm.TransitionReceive, Peer: "Client", Label: "Request"},
	})
	roles := []trace.Role{"Client", "Server"}
	sims := map[trace.Role]*cfsm.Simulator{
		"Client": cfsm.New(sender),
		"Server": cfsm.New(receiver),
	}
	coord, err := distributed.New(roles, sims)
	if err != nil {
		t.Fatalf("distributed.New: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	tracer := NewTracer(otel.Tracer("test"), "run-1")

	sub := NewSubscriber("run-1", metrics, tracer)
	detach := sub.Attach(coord)
	defer detach()

	if err := coord.RunToCompletion(); err != nil {
		t.Fatalf("RunToCompletion: %v", err)
	}

	if got := sumCounter(t, metrics.stepsTotal); got != 2 {
		t.Fatalf("steps_total = %v, want 2 (one send, one receive)", got)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans (send + receive), got %d", len(spans))
	}
	names := map[string]bool{}
	for _, s := range spans {
		names[s.Name] = true
	}
	if !names["send"] || !names["receive"] {
		t.Fatalf("expected send and receive span names, got %v", names)
	}
}

func TestSubscriber_Attach_DetachStopsFurtherRecording(t *testing.T) {
	a := cfsm.NewCFSM("A", []cfsm.StateID{"a0", "a1", "a2"}, "a0", []cfsm.StateID{"a2"}, []cfsm.Transition{
		{From: "a0", To: "a1", Kind: cfsm.TransitionTau},
		{From: "a1", To: "a2", Kind: cfsm.TransitionTau},
	})
	roles := []trace.Role{"A"}
	sims := map[trace.Role]*cfsm.Simulator{"A": cfsm.New(a)}
	coord, err := distributed.New(roles, sims)
	if err != nil {
		t.Fatalf("distributed.New: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	sub := NewSubscriber("run-1", metrics, nil)
	detach := sub.Attach(coord)

	if _, err := coord.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	detach()
	if _, err := coord.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if got := sumCounter(t, metrics.stepsTotal); got != 1 {
		t.Fatalf("steps_total after detach = %v, want 1 (only the first step recorded)", got)
	}
}

func TestSubscriber_Handle_LatencyIsZeroOnFirstEventPerRole(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	sub := NewSubscriber("run-1", metrics, nil)

	sub.handle(trace.Event{Kind: trace.EventTau, Role: "A"})
	var first dto.Metric
	if err := metrics.stepLatency.WithLabelValues("run-1", "A", string(trace.EventTau)).(prometheus.Histogram).Write(&first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := first.GetHistogram().GetSampleSum(); got != 0 {
		t.Fatalf("latency of the first event for role A = %v ms, want 0", got)
	}
	time.Sleep(time.Millisecond)
	sub.handle(trace.Event{Kind: trace.EventTau, Role: "A"})

	if got := sumCounter(t, metrics.stepsTotal); got != 2 {
		t.Fatalf("steps_total = %v, want 2", got)
	}
}
