package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// VariableSpace is the shared result store of one graph execution.
//
// Keys are written at most once (insert-or-fail), which lets disjoint
// writers run concurrently: a single lock guards the map itself, never the
// values. Readers see a slot either as a placeholder or fully populated.
//
// A VariableSpace belongs to one Graph. Its lifetime is one execution:
// the Engine refuses to run against a space that still holds state from an
// earlier execution until Reset is called.
type VariableSpace struct {
	mu      sync.RWMutex
	vars    map[VarID]*Variable
	waiters map[VarID]chan struct{}
	flow    *FlowPath
	used    bool
}

// NewVariableSpace creates an empty space with its own FlowPath.
func NewVariableSpace() *VariableSpace {
	return &VariableSpace{
		vars:    make(map[VarID]*Variable),
		waiters: make(map[VarID]chan struct{}),
		flow:    NewFlowPath(),
	}
}

// PutOption adjusts VariableSpace.Put.
type PutOption func(*putConfig)

type putConfig struct {
	overwrite bool
	pin       bool
}

// Overwrite allows Put to replace a populated, removable Variable.
func Overwrite() PutOption {
	return func(c *putConfig) { c.overwrite = true }
}

// Pinned marks the stored Variable non-removable.
func Pinned() PutOption {
	return func(c *putConfig) { c.pin = true }
}

// FlowPath returns the branch record paired with this space.
func (s *VariableSpace) FlowPath() *FlowPath { return s.flow }

// Has reports whether id is registered, populated or not.
func (s *VariableSpace) Has(id VarID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[id]
	return ok
}

// Get returns the Variable registered under id. A placeholder is returned
// as-is; only an unregistered id is an error. Get never mutates the space.
func (s *VariableSpace) Get(id VarID) (*Variable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[id]
	if !ok {
		return nil, fmt.Errorf("%w: variable %s", ErrLookup, id)
	}
	return v, nil
}

// Value returns the populated value under id. Unlike Get, a placeholder is
// reported as ErrLookup.
func (s *VariableSpace) Value(id VarID) (Value, error) {
	v, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	val := v.Value()
	if val == nil {
		return nil, fmt.Errorf("%w: variable %s is a placeholder", ErrLookup, id)
	}
	return val, nil
}

// Put stores val under id and transfers logical ownership of it to the
// space.
//
// An absent id or a placeholder is filled. Storing the value the slot
// already holds is a no-op. Storing a different value fails with
// ErrDuplicate unless Overwrite is given, and overwriting a pinned
// Variable fails with ErrPinned.
func (s *VariableSpace) Put(id VarID, val Value, opts ...PutOption) (*Variable, error) {
	if val == nil {
		return nil, fmt.Errorf("%w: nil value for variable %s", ErrTypeMismatch, id)
	}
	var cfg putConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vars[id]
	if !ok {
		v = newVariable(id)
		s.vars[id] = v
	}

	if current := v.Value(); current != nil {
		if sameValue(current, val) {
			if cfg.pin {
				v.MarkRemovable(false)
			}
			return v, nil
		}
		if !cfg.overwrite {
			return nil, fmt.Errorf("%w: variable %s already holds a value", ErrDuplicate, id)
		}
		if !v.Removable() {
			return nil, fmt.Errorf("%w: cannot overwrite variable %s", ErrPinned, id)
		}
	}

	v.set(val)
	if cfg.pin {
		v.MarkRemovable(false)
	}
	s.notifyLocked(id)
	return v, nil
}

// Placeholder registers an unpopulated, pinned Variable under id if none
// exists and returns whatever Variable is registered there.
func (s *VariableSpace) Placeholder(id VarID) *Variable {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.vars[id]; ok {
		return v
	}
	v := newVariable(id)
	v.removable = false
	s.vars[id] = v
	return v
}

// Release drops the value held under id so its storage can be reclaimed.
// Pinned Variables are never released.
func (s *VariableSpace) Release(id VarID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[id]
	if !ok {
		return fmt.Errorf("%w: variable %s", ErrLookup, id)
	}
	if !v.Removable() {
		return fmt.Errorf("%w: variable %s", ErrPinned, id)
	}
	v.set(nil)
	return nil
}

// Wait blocks until id holds a value or ctx ends.
func (s *VariableSpace) Wait(ctx context.Context, id VarID) (Value, error) {
	for {
		s.mu.Lock()
		if v, ok := s.vars[id]; ok {
			if val := v.Value(); val != nil {
				s.mu.Unlock()
				return val, nil
			}
		}
		ch, ok := s.waiters[id]
		if !ok {
			ch = make(chan struct{})
			s.waiters[id] = ch
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

// notifyLocked wakes waiters on id. Caller holds s.mu.
func (s *VariableSpace) notifyLocked(id VarID) {
	if ch, ok := s.waiters[id]; ok {
		close(ch)
		delete(s.waiters, id)
	}
}

// Len returns the number of registered Variables, placeholders included.
func (s *VariableSpace) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Snapshot returns every registered Variable ordered by (node, slot).
func (s *VariableSpace) Snapshot() []*Variable {
	s.mu.RLock()
	out := make([]*Variable, 0, len(s.vars))
	for _, v := range s.vars {
		out = append(out, v)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].id, out[j].id
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		return a.Slot < b.Slot
	})
	return out
}

// Reset discards every Variable, waiter and FlowPath mark so the owning
// graph can be executed again. Goroutines blocked in Wait are woken; they
// re-register against the cleared space and return once the next
// execution fills their slot.
func (s *VariableSpace) Reset() {
	s.mu.Lock()
	s.vars = make(map[VarID]*Variable)
	for _, ch := range s.waiters {
		close(ch)
	}
	s.waiters = make(map[VarID]chan struct{})
	s.used = false
	s.mu.Unlock()
	s.flow.Reset()
}

// begin claims the space for a new execution. It fails if an earlier
// execution already used the space and Reset has not been called since.
func (s *VariableSpace) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used {
		return ErrDirtySpace
	}
	s.used = true
	return nil
}

// touch marks the space used without requiring it to be fresh.
func (s *VariableSpace) touch() {
	s.mu.Lock()
	s.used = true
	s.mu.Unlock()
}
