// Package emit provides event emission and observability for graph execution.
package emit

// Emitter receives observability events from graph execution.
//
// Implementations should be:
//   - Non-blocking: avoid slowing down execution
//   - Thread-safe: called concurrently from parallel nodes
//   - Resilient: never panic, never fail the execution
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}
