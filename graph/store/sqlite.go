package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by an embedded SQLite database.
//
// It uses the pure-Go modernc.org/sqlite driver, so no cgo is required.
// Pass ":memory:" as path for a throwaway database.
//
// Example:
//
//	st, err := store.NewSQLiteStore("./dataflow.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

var sqliteDialect = sqlDialect{
	upsertRun: `
		INSERT INTO dataflow_runs (run_id, status, idempotency_key, digest, record, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			idempotency_key = excluded.idempotency_key,
			digest = excluded.digest,
			record = excluded.record,
			timestamp = excluded.timestamp
	`,
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)    // SQLite supports one writer at a time
	db.SetMaxIdleConns(1)    // Keep connection open
	db.SetConnMaxLifetime(0) // No max lifetime for SQLite

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close() // Ignore close error when returning pragma error
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close() // Ignore close error when returning pragma error
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	st := &SQLiteStore{db: db, path: path}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close() // Ignore close error when returning table creation error
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS dataflow_runs (
			run_id TEXT NOT NULL PRIMARY KEY,
			status TEXT NOT NULL,
			idempotency_key TEXT NOT NULL,
			digest TEXT NOT NULL,
			record BLOB NOT NULL,
			timestamp TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create dataflow_runs table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_runs_status ON dataflow_runs(status)"); err != nil {
		return fmt.Errorf("failed to create idx_runs_status: %w", err)
	}

	idempotencyTable := `
		CREATE TABLE IF NOT EXISTS dataflow_idempotency_keys (
			key_value TEXT NOT NULL PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, idempotencyTable); err != nil {
		return fmt.Errorf("failed to create dataflow_idempotency_keys table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// SaveRun implements Store.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return saveRunSQL(ctx, s.db, sqliteDialect, rec)
}

// LoadRun implements Store.
func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (Record, error) {
	if err := s.checkOpen(); err != nil {
		return Record{}, err
	}
	return loadRunSQL(ctx, s.db, runID)
}

// DeleteRun implements Store.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return deleteRunSQL(ctx, s.db, runID)
}

// CheckIdempotency implements Store.
func (s *SQLiteStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	return checkIdempotencySQL(ctx, s.db, key)
}

// Close closes the database. Further calls fail.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }
