package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store.
//
// Records are kept encoded, so a loaded Record never aliases one that was
// saved. MemStore is safe for concurrent use.
//
// Example:
//
//	st := store.NewMemStore()
//	engine, _ := graph.New(catalog, st, nil, graph.WithPersistence(true))
type MemStore struct {
	mu          sync.RWMutex
	runs        map[string][]byte // runID -> encoded record
	idempotency map[string]bool   // idempotency key -> committed
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		runs:        make(map[string][]byte),
		idempotency: make(map[string]bool),
	}
}

// SaveRun implements Store.
func (m *MemStore) SaveRun(_ context.Context, rec Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.IdempotencyKey != "" {
		if m.idempotency[rec.IdempotencyKey] {
			return ErrIdempotencyViolation
		}
		m.idempotency[rec.IdempotencyKey] = true
	}
	m.runs[rec.RunID] = data
	return nil
}

// LoadRun implements Store.
func (m *MemStore) LoadRun(_ context.Context, runID string) (Record, error) {
	m.mu.RLock()
	data, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return DecodeRecord(data)
}

// DeleteRun implements Store.
func (m *MemStore) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return ErrNotFound
	}
	delete(m.runs, runID)
	return nil
}

// CheckIdempotency implements Store.
func (m *MemStore) CheckIdempotency(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[key], nil
}

// Len returns the number of stored runs.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}
