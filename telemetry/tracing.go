package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/mpst-workbench/core/trace"
)

// Tracer turns trace.Events into OpenTelemetry spans: one span per event,
// named after the event's Kind, started and ended immediately since each
// event is a point in time rather than a duration.
//
// Attributes recorded on every span:
//   - mpst.run_id, mpst.step, mpst.role, mpst.node_id, mpst.label
//   - every entry of Event.Meta, type-switched over
//     string/int/int64/float64/bool/time.Duration, falling back to
//     fmt.Sprintf for anything else
//
// If Meta["error"] is set, the span's status is marked codes.Error and the
// value is recorded as the span's error.
type Tracer struct {
	tracer oteltrace.Tracer
	runID  string
}

// NewTracer wraps an OpenTelemetry tracer (typically otel.Tracer("mpst-workbench")).
func NewTracer(tracer oteltrace.Tracer, runID string) *Tracer {
	return &Tracer{tracer: tracer, runID: runID}
}

// Emit creates and immediately ends a span for evt.
func (t *Tracer) Emit(evt trace.Event) {
	ctx := context.Background()
	_, span := t.tracer.Start(ctx, string(evt.Kind))
	defer span.End()

	t.addStandardAttributes(span, evt)
	t.addMetadataAttributes(span, evt.Meta)

	if errMsg, ok := evt.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}

// Flush forces the active tracer provider to export any buffered spans, if
// the provider supports it (a batching SDK provider does; the global noop
// provider does not).
func (t *Tracer) Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (t *Tracer) addStandardAttributes(span oteltrace.Span, evt trace.Event) {
	span.SetAttributes(
		attribute.String("mpst.run_id", t.runID),
		attribute.Int("mpst.step", evt.Step),
		attribute.String("mpst.role", string(evt.Role)),
		attribute.String("mpst.node_id", evt.NodeID),
		attribute.String("mpst.label", string(evt.Label)),
	)
}

func (t *Tracer) addMetadataAttributes(span oteltrace.Span, meta map[string]any) {
	for key, value := range meta {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(key, v))
		case int:
			span.SetAttributes(attribute.Int(key, v))
		case int64:
			span.SetAttributes(attribute.Int64(key, v))
		case float64:
			span.SetAttributes(attribute.Float64(key, v))
		case bool:
			span.SetAttributes(attribute.Bool(key, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(key, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
}
