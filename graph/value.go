package graph

import "fmt"

// Value is the opaque payload that flows along graph edges. The execution
// core never looks inside a value beyond these predicates; everything else
// (dtype, shape, storage) belongs to the operator catalog.
//
// Implementations must be safe to share between consumers: the engine hands
// the same Value to every node that reads it and never copies it.
type Value interface {
	// IsEmpty reports whether the value holds no elements.
	IsEmpty() bool

	// IsString reports whether the value holds string data.
	IsString() bool

	// BoolAt reads element i as a boolean scalar.
	BoolAt(i int) (bool, error)
}

// predicate coerces v into a branch decision by reading its first element.
func predicate(v Value) (bool, error) {
	if v == nil || v.IsEmpty() {
		return false, fmt.Errorf("%w: predicate is empty", ErrTypeMismatch)
	}
	if v.IsString() {
		return false, fmt.Errorf("%w: predicate holds strings", ErrTypeMismatch)
	}
	b, err := v.BoolAt(0)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return b, nil
}
