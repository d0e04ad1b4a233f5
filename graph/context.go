package graph

import "fmt"

// Context is a node's view onto the VariableSpace. It resolves the node's
// declared inputs to Variables and exposes its configuration arguments.
//
// A Context is only valid for the duration of one Op invocation.
type Context struct {
	node  *Node
	space *VariableSpace
}

func newContext(n *Node, space *VariableSpace) *Context {
	return &Context{node: n, space: space}
}

// NodeID returns the id of the node being evaluated.
func (c *Context) NodeID() int { return c.node.ID }

// Node returns the node being evaluated. It must not be modified.
func (c *Context) Node() *Node { return c.node }

// NumInputs returns the number of declared inputs.
func (c *Context) NumInputs() int { return len(c.node.Inputs) }

// Space returns the VariableSpace of the current execution.
func (c *Context) Space() *VariableSpace { return c.space }

// Variable resolves input i to its populated Variable.
//
// Returns ErrLookup if i is out of range or the variable is absent or a
// placeholder, and ErrTypeMismatch if input i references a scope.
func (c *Context) Variable(i int) (*Variable, error) {
	if i < 0 || i >= len(c.node.Inputs) {
		return nil, fmt.Errorf("%w: node %d has no input %d", ErrLookup, c.node.ID, i)
	}
	in := c.node.Inputs[i]
	if in.IsScope() {
		return nil, fmt.Errorf("%w: input %d of node %d is %s", ErrTypeMismatch, i, c.node.ID, in)
	}
	v, err := c.space.Get(in.VarID())
	if err != nil {
		return nil, err
	}
	if !v.HasValue() {
		return nil, fmt.Errorf("%w: input %d of node %d (%s) is a placeholder", ErrLookup, i, c.node.ID, in)
	}
	return v, nil
}

// Input resolves input i to its value.
func (c *Context) Input(i int) (Value, error) {
	v, err := c.Variable(i)
	if err != nil {
		return nil, err
	}
	val := v.Value()
	if val == nil {
		return nil, fmt.Errorf("%w: input %d of node %d was released", ErrLookup, i, c.node.ID)
	}
	return val, nil
}

// IArg returns integer argument i.
func (c *Context) IArg(i int) (int64, error) {
	if i < 0 || i >= len(c.node.IArgs) {
		return 0, fmt.Errorf("%w: node %d has no integer argument %d", ErrLookup, c.node.ID, i)
	}
	return c.node.IArgs[i], nil
}

// BArg returns boolean argument i.
func (c *Context) BArg(i int) (bool, error) {
	if i < 0 || i >= len(c.node.BArgs) {
		return false, fmt.Errorf("%w: node %d has no boolean argument %d", ErrLookup, c.node.ID, i)
	}
	return c.node.BArgs[i], nil
}

// SArg returns string argument i.
func (c *Context) SArg(i int) (string, error) {
	if i < 0 || i >= len(c.node.SArgs) {
		return "", fmt.Errorf("%w: node %d has no string argument %d", ErrLookup, c.node.ID, i)
	}
	return c.node.SArgs[i], nil
}
