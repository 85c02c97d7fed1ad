package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mpst-workbench/core/trace"
)

func TestLogSink_TextMode_WritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf, false)

	sink.Emit(trace.Event{Kind: trace.EventSend, Step: 1, Role: "Client", NodeID: "n1", Label: "Request"})

	out := buf.String()
	if !strings.Contains(out, "[send]") || !strings.Contains(out, "role=Client") || !strings.Contains(out, "label=Request") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestLogSink_JSONMode_WritesValidJSONLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(&buf, true)

	sink.Emit(trace.Event{Kind: trace.EventReceive, Step: 2, Role: "Server"})

	var decoded trace.Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v (%q)", err, buf.String())
	}
	if decoded.Kind != trace.EventReceive || decoded.Step != 2 {
		t.Fatalf("decoded event mismatch: %+v", decoded)
	}
}

func TestLogSink_NilWriterDefaultsToStdout(t *testing.T) {
	sink := NewLogSink(nil, false)
	if sink.writer == nil {
		t.Fatalf("expected a non-nil default writer")
	}
}

func TestLogSink_Attach_DetachStopsWrites(t *testing.T) {
	bus := newFakeSource()
	var buf bytes.Buffer
	sink := NewLogSink(&buf, false)

	detach := sink.Attach(bus)
	bus.emit(trace.Event{Kind: trace.EventTau})
	detach()
	bus.emit(trace.Event{Kind: trace.EventTau})

	if n := strings.Count(buf.String(), "[tau]"); n != 1 {
		t.Fatalf("expected exactly 1 recorded event before detach, got %d", n)
	}
}
