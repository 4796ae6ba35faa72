package emit

// NullEmitter implements Emitter by discarding all events.
//
// This is a no-op emitter for callers that do not want declaration or
// compilation events. It implements the Emitter interface but does nothing
// with emitted events.
//
// Example usage:
//
//	g := graph.New[MyState](graph.WithGraphEmitter(emit.NewNullEmitter()))
type NullEmitter struct{}

// NewNullEmitter creates a new NullEmitter.
//
// Returns a NullEmitter that discards all events without any processing.
// This is safe for concurrent use and has zero overhead.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event without any processing.
func (n *NullEmitter) Emit(event Event) {
	// No-op: discard the event
}
