// Package graph provides the dataflow execution core: a VariableSpace of
// (node, slot) results, a FlowPath of branch decisions, and an Engine that
// runs an id-indexed node graph while pruning untaken control-flow branches.
package graph

import (
	"context"
	"errors"
	"fmt"
)

// ErrLookup indicates a missing Variable, Node or Scope id. Always a
// graph-integrity bug; executions that hit it are aborted, not retried.
var ErrLookup = errors.New("lookup failed")

// ErrDuplicate indicates an attempt to store a different value under a
// Variable id that is already populated, without requesting overwrite.
var ErrDuplicate = errors.New("duplicate variable")

// ErrReentrantMark indicates a control-flow node was evaluated twice within
// one execution. It points at a scheduling bug upstream.
var ErrReentrantMark = errors.New("branch already marked for node")

// ErrTypeMismatch indicates a value that cannot be used the way a node
// requires, such as a predicate that cannot be read as a boolean.
var ErrTypeMismatch = errors.New("type mismatch")

// ErrUnresolvedScope indicates an input refers to a scope id that the graph
// does not contain.
var ErrUnresolvedScope = errors.New("unresolved scope")

// ErrPinned is returned when releasing a Variable marked non-removable.
var ErrPinned = errors.New("variable is pinned")

// ErrDirtySpace is returned when a graph is executed against a VariableSpace
// left over from an earlier execution. Call Reset first.
var ErrDirtySpace = errors.New("variable space holds state from a previous execution")

// ErrCycle indicates the top-level node dependencies form a cycle.
var ErrCycle = errors.New("dependency cycle")

// ErrReplayMismatch indicates a persisted run record whose variables no
// longer match its digest.
var ErrReplayMismatch = errors.New("replay mismatch: record digest does not match its variables")

// ErrNoProgress is returned when the scheduler has unresolved nodes but
// nothing runnable and nothing in flight.
var ErrNoProgress = errors.New("no progress: no runnable nodes in frontier")

// ExecError reports a failure while executing a specific node. It unwraps to
// the underlying cause, so errors.Is(err, ErrReentrantMark) and friends work
// on errors returned from Engine.Execute.
type ExecError struct {
	// NodeID identifies the failing node.
	NodeID int

	// Code is a machine-readable error code, e.g. "REENTRANT_MARK".
	Code string

	// Message is the human-readable description.
	Message string

	// Cause is the wrapped error.
	Cause error
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	msg := fmt.Sprintf("node %d: %s", e.NodeID, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *ExecError) Unwrap() error {
	return e.Cause
}

// EngineError represents an error from Engine configuration or persistence.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// nodeError wraps err for nodeID, deriving the code from the sentinel it
// wraps. Errors that are already ExecErrors pass through untouched so the
// innermost failing node is what the caller sees.
func nodeError(nodeID int, message string, err error) error {
	var ee *ExecError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecError{NodeID: nodeID, Code: codeOf(err), Message: message, Cause: err}
}

func codeOf(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) && ee.Code != "" {
		return ee.Code
	}
	switch {
	case errors.Is(err, ErrLookup):
		return "LOOKUP"
	case errors.Is(err, ErrDuplicate):
		return "DUPLICATE"
	case errors.Is(err, ErrReentrantMark):
		return "REENTRANT_MARK"
	case errors.Is(err, ErrTypeMismatch):
		return "TYPE_MISMATCH"
	case errors.Is(err, ErrUnresolvedScope):
		return "UNRESOLVED_SCOPE"
	case errors.Is(err, ErrPinned):
		return "PINNED"
	case errors.Is(err, ErrCycle):
		return "CYCLE"
	case errors.Is(err, ErrReplayMismatch):
		return "REPLAY_MISMATCH"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CANCELLED"
	default:
		return "NODE_FAILED"
	}
}
