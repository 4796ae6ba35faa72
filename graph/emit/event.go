package emit

// Event represents an observability event raised while declaring, validating,
// or compiling a graph.
//
// The builder and compiler are synchronous, so events mark points in time:
//   - declaration warnings (e.g. mutating a graph after it was compiled)
//   - validation outcomes
//   - lowering progress when compiling in debug mode
//
// Events flow to an Emitter which can log them, turn them into OpenTelemetry
// spans, or buffer them for inspection in tests.
type Event struct {
	// Graph names the graph the event belongs to.
	Graph string

	// Phase is the lifecycle phase that raised the event:
	// "declare", "validate", or "compile".
	Phase string

	// NodeID identifies the node the event concerns.
	// Empty string for graph-level events.
	NodeID string

	// Msg is a short machine-matchable description of the event,
	// e.g. "node_attached", "mutated_after_compile", "validation_failed".
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "error": validation or compilation error text
	//   - "channel": channel name involved in a lowering step
	//   - "branch": branch name involved in a lowering step
	//   - "duration_ms": compile duration in milliseconds
	Meta map[string]interface{}
}

// Phase values raised by the builder and compiler.
const (
	PhaseDeclare  = "declare"
	PhaseValidate = "validate"
	PhaseCompile  = "compile"
)
