package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// This emitter captures all events and provides query capabilities for
// inspecting what the builder and compiler did. Events are organized by
// graph name for efficient retrieval and filtering.
//
// Features:
//   - Thread-safe concurrent access
//   - Query by graph name with optional filtering
//   - Filter by node, message, or phase
//   - Clear events by graph or all events
//
// Use cases:
//   - Asserting on declaration warnings and debug-mode lowering events in tests
//   - Tooling that renders a compile report
//
// Warning: this emitter stores all events in memory; long-lived processes
// compiling many graphs should Clear periodically.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter()
//	g := graph.New[MyState](graph.WithGraphEmitter(emitter))
//	// ... declare and compile ...
//	warnings := emitter.HistoryWithFilter("review", emit.HistoryFilter{Msg: "mutated_after_compile"})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // graph name -> events
}

// HistoryFilter specifies criteria for filtering captured events.
//
// All filter fields are optional. When multiple fields are set, they are
// combined with AND logic (all conditions must match).
type HistoryFilter struct {
	NodeID string // Filter by node ID (empty = no filter)
	Msg    string // Filter by message (empty = no filter)
	Phase  string // Filter by lifecycle phase (empty = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
//
// Returns a BufferedEmitter that stores all events in memory and provides
// query capabilities. Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer.
//
// Events are organized by graph name. This method is thread-safe and can be
// called concurrently from multiple goroutines.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.Graph] = append(b.events[event.Graph], event)
}

// History retrieves all events for a specific graph.
//
// Returns events in the order they were emitted. Returns an empty slice
// if no events exist for the given graph.
//
// This method is thread-safe and returns a copy of the events to prevent
// concurrent modification issues.
func (b *BufferedEmitter) History(graphName string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[graphName]
	if events == nil {
		return []Event{}
	}

	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// HistoryWithFilter retrieves filtered events for a specific graph.
//
// Applies the provided filter criteria to select matching events. All filter
// conditions must match for an event to be included (AND logic).
//
// Returns events in the order they were emitted. Returns an empty slice if
// no events match the filter.
func (b *BufferedEmitter) HistoryWithFilter(graphName string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[graphName]
	if events == nil {
		return []Event{}
	}

	if filter.NodeID == "" && filter.Msg == "" && filter.Phase == "" {
		result := make([]Event, len(events))
		copy(result, events)
		return result
	}

	var result []Event
	for _, event := range events {
		if !matchesFilter(event, filter) {
			continue
		}
		result = append(result, event)
	}

	if result == nil {
		return []Event{}
	}
	return result
}

// matchesFilter checks if an event matches the filter criteria.
func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.NodeID != "" && event.NodeID != filter.NodeID {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.Phase != "" && event.Phase != filter.Phase {
		return false
	}
	return true
}

// Clear removes stored events.
//
// If graphName is non-empty, clears only events for that graph.
// If graphName is empty, clears all stored events across all graphs.
//
// This method is thread-safe and can be called concurrently.
func (b *BufferedEmitter) Clear(graphName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if graphName == "" {
		b.events = make(map[string][]Event)
	} else {
		delete(b.events, graphName)
	}
}
