package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mpst-workbench/core/event"
	"github.com/mpst-workbench/core/trace"
)

// LogSink writes every trace.Event it receives to a writer, either as
// human-readable text or as JSON lines.
type LogSink struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogSink builds a LogSink writing to writer (os.Stdout if nil) in text
// mode, or JSON-lines mode when jsonMode is true.
func NewLogSink(writer io.Writer, jsonMode bool) *LogSink {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogSink{writer: writer, jsonMode: jsonMode}
}

// Emit is an event.Handler[trace.Event]; pass it directly to Source.On, or
// wrap in Attach to subscribe to every kind at once.
func (l *LogSink) Emit(evt trace.Event) {
	if l.jsonMode {
		l.emitJSON(evt)
		return
	}
	l.emitText(evt)
}

func (l *LogSink) emitJSON(evt trace.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogSink) emitText(evt trace.Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] step=%d role=%s node=%s", evt.Kind, evt.Step, evt.Role, evt.NodeID)
	if evt.Label != "" {
		_, _ = fmt.Fprintf(l.writer, " label=%s", evt.Label)
	}
	if evt.Message != nil {
		_, _ = fmt.Fprintf(l.writer, " message=%s->%s:%s", evt.Message.From, evt.Message.To, evt.Message.Label)
	}
	if len(evt.Meta) > 0 {
		if metaJSON, err := json.Marshal(evt.Meta); err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

// Attach registers Emit against every event kind src can emit, the same way
// Subscriber.Attach does.
func (l *LogSink) Attach(src Source) (detach func()) {
	subs := make([]event.Subscription, 0, len(allEventKinds))
	for _, kind := range allEventKinds {
		subs = append(subs, src.On(kind, l.Emit))
	}
	return func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}
}
