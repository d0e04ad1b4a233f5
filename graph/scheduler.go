package graph

import (
	"container/heap"
	"context"
	"sync"
)

// WorkItem is one ready node waiting in the Frontier.
type WorkItem struct {
	// NodeID identifies the node to execute.
	NodeID int `json:"node_id"`

	// OrderKey orders ready nodes: lower keys are dequeued first. The driver
	// uses the node's declaration position, so a single worker evaluates
	// independent nodes in the order they were added to the graph.
	OrderKey uint64 `json:"order_key"`
}

// workHeap implements container/heap.Interface for WorkItems, ordered by
// ascending OrderKey.
type workHeap []WorkItem

func (h workHeap) Len() int { return len(h) }

func (h workHeap) Less(i, j int) bool {
	return h[i].OrderKey < h[j].OrderKey
}

func (h workHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *workHeap) Push(x interface{}) {
	*h = append(*h, x.(WorkItem))
}

func (h *workHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// Frontier is the ready queue of one execution.
//
// It combines a min-heap, which decides which ready node runs next, with a
// buffered channel, which bounds capacity and lets Dequeue block until work
// arrives or the context ends.
type Frontier struct {
	heap     workHeap
	queue    chan struct{}
	capacity int
	mu       sync.Mutex
}

// NewFrontier creates a Frontier holding at most capacity items.
func NewFrontier(capacity int) *Frontier {
	if capacity < 1 {
		capacity = 1
	}
	f := &Frontier{
		heap:     make(workHeap, 0, capacity),
		queue:    make(chan struct{}, capacity),
		capacity: capacity,
	}
	heap.Init(&f.heap)
	return f
}

// Enqueue adds item. It blocks while the Frontier is full and returns
// ctx.Err() if ctx ends first.
func (f *Frontier) Enqueue(ctx context.Context, item WorkItem) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	f.mu.Lock()
	heap.Push(&f.heap, item)
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case f.queue <- struct{}{}:
		return nil
	}
}

// Dequeue removes and returns the item with the lowest OrderKey, blocking
// until one is available or ctx ends.
func (f *Frontier) Dequeue(ctx context.Context) (WorkItem, error) {
	if ctx.Err() != nil {
		return WorkItem{}, ctx.Err()
	}

	select {
	case <-ctx.Done():
		return WorkItem{}, ctx.Err()
	case <-f.queue:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.heap.Len() == 0 {
		return WorkItem{}, context.Canceled
	}
	return heap.Pop(&f.heap).(WorkItem), nil
}

// Len returns the number of queued items.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// Capacity returns the maximum number of queued items.
func (f *Frontier) Capacity() int { return f.capacity }
