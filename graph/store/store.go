// Package store persists records of dataflow graph executions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("not found")

// ErrIdempotencyViolation is returned when a record is saved with an
// idempotency key that an earlier save already committed.
var ErrIdempotencyViolation = errors.New("idempotency violation: run record already committed")

// errClosed is returned by stores used after Close.
var errClosed = errors.New("store is closed")

// Store persists execution records.
//
// Implementations:
//   - MemStore: in-memory, for tests and single-process use
//   - SQLiteStore: embedded database file
//   - MySQLStore: shared relational database
//   - RedisStore: key-value store
//   - GCSStore: Google Cloud Storage objects
type Store interface {
	// SaveRun persists rec, replacing any earlier record for rec.RunID.
	// It fails with ErrIdempotencyViolation if rec.IdempotencyKey was
	// already committed, in which case nothing is written.
	SaveRun(ctx context.Context, rec Record) error

	// LoadRun returns the record for runID, or ErrNotFound.
	LoadRun(ctx context.Context, runID string) (Record, error)

	// DeleteRun removes the record for runID. Committed idempotency keys
	// are kept. Deleting an unknown run returns ErrNotFound.
	DeleteRun(ctx context.Context, runID string) error

	// CheckIdempotency reports whether key has been committed.
	CheckIdempotency(ctx context.Context, key string) (bool, error)
}

// Record is the persisted outcome of one execution.
type Record struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`

	// FailedNode is the node whose failure ended the run, or -1.
	FailedNode int    `json:"failed_node"`
	Error      string `json:"error,omitempty"`

	// Variables holds every registered variable ordered by (node, slot).
	Variables []VariableRecord `json:"variables"`

	// Branches maps control-flow node ids to the branch they took.
	Branches map[int]int `json:"branches"`
	Executed []int       `json:"executed"`
	Pruned   []int       `json:"pruned"`

	// IdempotencyKey identifies this exact outcome of this run.
	IdempotencyKey string `json:"idempotency_key"`

	// Digest is a content hash of Variables.
	Digest string `json:"digest"`

	Timestamp time.Time `json:"timestamp"`
}

// VariableRecord is one persisted variable. Value is absent for
// placeholders and for variables that share another variable's value.
type VariableRecord struct {
	Node        int             `json:"node"`
	Slot        int             `json:"slot"`
	Removable   bool            `json:"removable"`
	Placeholder bool            `json:"placeholder"`
	Value       json.RawMessage `json:"value,omitempty"`

	// SharedWith names an earlier variable in the record holding the same
	// value by reference, as a Switch output and its source do.
	SharedWith *VarRef `json:"shared_with,omitempty"`
}

// VarRef addresses one variable of a record.
type VarRef struct {
	Node int `json:"node"`
	Slot int `json:"slot"`
}
