package graph

import (
	"context"
	"fmt"
	"sync"
)

// Control-flow operator tags. The Engine evaluates these itself; they can
// not be registered in a Catalog.
const (
	OpSwitch      = "Switch"
	OpMerge       = "Merge"
	OpConditional = "Conditional"
)

// Node is one unit of computation in a Graph.
//
// Nodes reference other nodes and scopes by id only. A Node must not be
// modified after it has been added to a Graph.
type Node struct {
	// ID identifies the node within its graph.
	ID int

	// Name is an optional label used in events and logs.
	Name string

	// Op is the operator tag, dispatched through the Engine's Catalog
	// unless it is one of the control-flow tags.
	Op string

	// Inputs are the ordered input references.
	Inputs []Input

	// Outputs is the declared output arity. Zero means one output.
	Outputs int

	// IArgs, BArgs and SArgs are the resolved configuration arguments.
	IArgs []int64
	BArgs []bool
	SArgs []string

	// Policy optionally overrides the Engine's per-node settings.
	Policy *NodePolicy
}

// Arity returns the number of output slots the node declares.
func (n *Node) Arity() int {
	if n.Outputs <= 0 {
		return 1
	}
	return n.Outputs
}

// IsControlFlow reports whether the Engine evaluates the node itself.
func (n *Node) IsControlFlow() bool {
	return isControlFlow(n.Op)
}

func isControlFlow(op string) bool {
	switch op {
	case OpSwitch, OpMerge, OpConditional:
		return true
	}
	return false
}

func (n *Node) label() string {
	if n.Name != "" {
		return n.Name
	}
	return fmt.Sprintf("%s#%d", n.Op, n.ID)
}

// Op is an ordinary operator. Invoke reads the node's inputs and arguments
// through c and returns exactly Node.Arity() values, one per output slot.
//
// Ops must respect ctx cancellation and must not write to the
// VariableSpace themselves; the Engine commits the returned values.
type Op interface {
	Invoke(ctx context.Context, c *Context) ([]Value, error)
}

// OpFunc is a function adapter that implements the Op interface.
//
// Example:
//
//	identity := graph.OpFunc(func(ctx context.Context, c *graph.Context) ([]graph.Value, error) {
//	    v, err := c.Input(0)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return []graph.Value{v}, nil
//	})
type OpFunc func(ctx context.Context, c *Context) ([]Value, error)

// Invoke implements the Op interface for OpFunc.
func (f OpFunc) Invoke(ctx context.Context, c *Context) ([]Value, error) {
	return f(ctx, c)
}

// Catalog maps operator tags to Ops. It is safe for concurrent use.
type Catalog struct {
	mu  sync.RWMutex
	ops map[string]Op
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{ops: make(map[string]Op)}
}

// Register adds op under tag.
//
// Returns error if:
//   - tag is empty
//   - op is nil
//   - tag is a control-flow tag
//   - tag is already registered (ErrDuplicate)
func (c *Catalog) Register(tag string, op Op) error {
	if tag == "" {
		return &EngineError{Message: "operator tag cannot be empty", Code: "INVALID_OP"}
	}
	if op == nil {
		return &EngineError{Message: "operator cannot be nil: " + tag, Code: "INVALID_OP"}
	}
	if isControlFlow(tag) {
		return &EngineError{Message: "operator tag is reserved: " + tag, Code: "RESERVED_OP"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.ops[tag]; exists {
		return fmt.Errorf("%w: operator %q", ErrDuplicate, tag)
	}
	c.ops[tag] = op
	return nil
}

// Lookup returns the Op registered under tag.
func (c *Catalog) Lookup(tag string) (Op, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	op, ok := c.ops[tag]
	return op, ok
}

// Len returns the number of registered operators.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ops)
}
