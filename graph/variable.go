package graph

import (
	"fmt"
	"reflect"
	"sync"
)

// VarID addresses one output slot of one node. It is the identity of a
// Variable and the key of a VariableSpace.
type VarID struct {
	Node int
	Slot int
}

// String renders the id as "node:slot".
func (id VarID) String() string {
	return fmt.Sprintf("%d:%d", id.Node, id.Slot)
}

// Variable is a slot holding one result, or nothing yet.
//
// A Variable without a value is a placeholder: control-flow nodes register
// both of their output slots up front so that static wiring always
// resolves, and only the taken branch is ever filled.
//
// Removable defaults to true. A non-removable Variable is pinned: the
// engine and VariableSpace.Release never drop its value. Switch pins both
// its outputs and the Variable it forwards, since they share one value.
type Variable struct {
	id VarID

	mu        sync.RWMutex
	value     Value
	removable bool
}

func newVariable(id VarID) *Variable {
	return &Variable{id: id, removable: true}
}

// ID returns the variable's (node, slot) identity.
func (v *Variable) ID() VarID { return v.id }

// Value returns the held value, or nil for a placeholder.
func (v *Variable) Value() Value {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// HasValue reports whether the variable has been populated.
func (v *Variable) HasValue() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value != nil
}

// IsPlaceholder reports whether the variable is registered but unpopulated.
func (v *Variable) IsPlaceholder() bool { return !v.HasValue() }

// Removable reports whether the value may be released.
func (v *Variable) Removable() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.removable
}

// MarkRemovable sets the removable flag.
func (v *Variable) MarkRemovable(removable bool) {
	v.mu.Lock()
	v.removable = removable
	v.mu.Unlock()
}

// set publishes val. The swap happens under the lock so readers observe
// either the old state or the complete new value.
func (v *Variable) set(val Value) {
	v.mu.Lock()
	v.value = val
	v.mu.Unlock()
}

// sameValue reports whether a and b are the same value by identity.
// Values of non-comparable dynamic types are never considered the same.
func sameValue(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
