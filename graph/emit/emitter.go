package emit

// Emitter receives and processes observability events from graph declaration
// and compilation.
//
// Emitters enable pluggable observability backends:
//   - Logging: stdout, files, syslog
//   - Distributed tracing: OpenTelemetry, Jaeger, Zipkin
//   - In-memory capture for tests and tooling
//
// Implementations should be:
//   - Non-blocking: compilation should not stall on a slow backend
//   - Thread-safe: graphs may be compiled concurrently from multiple goroutines
//   - Resilient: a failing backend must not fail the compilation
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit should not panic. Errors should be handled internally.
	Emit(event Event)
}
