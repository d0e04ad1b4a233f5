package emit

// Event is one observability event from graph execution.
//
// Messages emitted by the engine:
//   - execution_start, execution_end, execution_failed
//   - node_start, node_end, node_pruned
//   - branch_taken
//   - scope_start, scope_end
type Event struct {
	// RunID identifies the execution.
	RunID string

	// Step is the 1-based sequence number of the event within its run.
	Step int

	// NodeID is the node the event concerns, or -1 for run- and
	// scope-level events.
	NodeID int

	// Msg names the event.
	Msg string

	// Meta carries event-specific fields such as "op", "branch",
	// "duration_ms", "scope", "reason" or "error".
	Meta map[string]interface{}
}

// HasNode reports whether the event concerns a specific node.
func (e Event) HasNode() bool { return e.NodeID >= 0 }
