package graph

import (
	"fmt"
	"sort"
	"sync"
)

// FlowPath records, for one execution, which branch each control-flow node
// took and which nodes were pruned. Marks are append-only: once a node's
// branch is recorded it cannot change until Reset.
type FlowPath struct {
	mu       sync.RWMutex
	branches map[int]int
	inactive map[int]struct{}
}

// NewFlowPath creates an empty FlowPath.
func NewFlowPath() *FlowPath {
	return &FlowPath{
		branches: make(map[int]int),
		inactive: make(map[int]struct{}),
	}
}

// MarkBranch records that nodeID took branch. A second mark for the same
// node fails with ErrReentrantMark and leaves the first mark in place.
func (f *FlowPath) MarkBranch(nodeID, branch int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.branches[nodeID]; ok {
		return fmt.Errorf("%w %d (branch %d)", ErrReentrantMark, nodeID, prev)
	}
	f.branches[nodeID] = branch
	return nil
}

// BranchOf returns the branch nodeID took, if it has been marked.
func (f *FlowPath) BranchOf(nodeID int) (int, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.branches[nodeID]
	return b, ok
}

// MarkInactive records that nodeID was pruned and its outputs are dead.
func (f *FlowPath) MarkInactive(nodeID int) {
	f.mu.Lock()
	f.inactive[nodeID] = struct{}{}
	f.mu.Unlock()
}

// IsActive reports whether nodeID's outputs are alive in this execution.
func (f *FlowPath) IsActive(nodeID int) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, dead := f.inactive[nodeID]
	return !dead
}

// Branches returns a copy of every branch mark.
func (f *FlowPath) Branches() map[int]int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[int]int, len(f.branches))
	for k, v := range f.branches {
		out[k] = v
	}
	return out
}

// Inactive returns the pruned node ids in ascending order.
func (f *FlowPath) Inactive() []int {
	f.mu.RLock()
	out := make([]int, 0, len(f.inactive))
	for id := range f.inactive {
		out = append(out, id)
	}
	f.mu.RUnlock()
	sort.Ints(out)
	return out
}

// Reset clears all marks.
func (f *FlowPath) Reset() {
	f.mu.Lock()
	f.branches = make(map[int]int)
	f.inactive = make(map[int]struct{})
	f.mu.Unlock()
}
