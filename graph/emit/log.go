package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter implements Emitter by writing structured log output to a writer.
//
// Supports two output modes:
//   - Text mode (default): Human-readable format with key=value pairs
//   - JSON mode: Machine-readable JSON format, one event per line
//
// Example text output:
//
//	[node_attached] graph=review phase=compile node=grade
//
// Example JSON output:
//
//	{"graph":"review","phase":"compile","nodeID":"grade","msg":"node_attached","meta":null}
//
// Usage:
//
//	// Text output to stdout
//	emitter := emit.NewLogEmitter(os.Stdout, false)
//
//	// JSON output to file
//	f, _ := os.Create("events.jsonl")
//	defer f.Close()
//	emitter := emit.NewLogEmitter(f, true)
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a new LogEmitter.
//
// Parameters:
//   - writer: Where to write the log output (nil defaults to os.Stdout)
//   - jsonMode: If true, emit JSON format; if false, emit text format
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{
		writer:   writer,
		jsonMode: jsonMode,
	}
}

// Emit writes an event to the configured writer.
//
// Format depends on jsonMode:
//   - JSON mode: Writes event as single-line JSON object
//   - Text mode: Writes human-readable format with [msg] prefix
func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

// emitJSON writes the event as a single JSON line.
func (l *LogEmitter) emitJSON(event Event) {
	payload := struct {
		Graph  string                 `json:"graph"`
		Phase  string                 `json:"phase"`
		NodeID string                 `json:"nodeID"`
		Msg    string                 `json:"msg"`
		Meta   map[string]interface{} `json:"meta"`
	}{
		Graph:  event.Graph,
		Phase:  event.Phase,
		NodeID: event.NodeID,
		Msg:    event.Msg,
		Meta:   event.Meta,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(l.writer, "[emit_error] failed to marshal event: %v\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

// emitText writes the event in human-readable key=value form.
func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] graph=%s phase=%s", event.Msg, event.Graph, event.Phase)
	if event.NodeID != "" {
		fmt.Fprintf(l.writer, " node=%s", event.NodeID)
	}
	if len(event.Meta) > 0 {
		if data, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", data)
		}
	}
	fmt.Fprintln(l.writer)
}
