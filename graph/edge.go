package graph

import "fmt"

// InputKind tags an Input reference.
type InputKind int

const (
	// InputVariable references one output slot of another node, or a value
	// the caller stored in the VariableSpace before execution.
	InputVariable InputKind = iota

	// InputScope references an entire Scope by id.
	InputScope
)

// Input is one ordered input reference of a Node.
//
// References are ids only. A variable reference whose Node is not part of
// the graph is a plain value reference: the caller must have stored
// (Node, Slot) in the graph's VariableSpace before execution.
type Input struct {
	Kind  InputKind
	Node  int
	Slot  int
	Scope int
}

// From references output slot 0 of node.
func From(node int) Input {
	return Input{Kind: InputVariable, Node: node}
}

// FromSlot references output slot of node.
func FromSlot(node, slot int) Input {
	return Input{Kind: InputVariable, Node: node, Slot: slot}
}

// FromScope references the scope with the given id.
func FromScope(scope int) Input {
	return Input{Kind: InputScope, Scope: scope}
}

// IsScope reports whether the input references a Scope.
func (in Input) IsScope() bool { return in.Kind == InputScope }

// VarID returns the variable the input reads. It is meaningless for scope
// references.
func (in Input) VarID() VarID { return VarID{Node: in.Node, Slot: in.Slot} }

func (in Input) String() string {
	if in.IsScope() {
		return fmt.Sprintf("scope(%d)", in.Scope)
	}
	return in.VarID().String()
}
