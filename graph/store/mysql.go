package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a Store backed by MySQL or a compatible server.
//
// Example:
//
//	dsn := "user:password@tcp(localhost:3306)/dataflow?parseTime=true"
//	st, err := store.NewMySQLStore(dsn)
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var mysqlDialect = sqlDialect{
	upsertRun: `
		INSERT INTO dataflow_runs (run_id, status, idempotency_key, digest, record, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			idempotency_key = VALUES(idempotency_key),
			digest = VALUES(digest),
			record = VALUES(record),
			timestamp = VALUES(timestamp)
	`,
}

// NewMySQLStore connects to dsn and creates the tables if needed.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	st := &MySQLStore{db: db}
	if err := st.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	runsTable := `
		CREATE TABLE IF NOT EXISTS dataflow_runs (
			run_id VARCHAR(255) NOT NULL PRIMARY KEY,
			status VARCHAR(32) NOT NULL,
			idempotency_key VARCHAR(255) NOT NULL,
			digest VARCHAR(255) NOT NULL,
			record LONGBLOB NOT NULL,
			timestamp VARCHAR(64) NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_runs_status (status)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`
	if _, err := m.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("failed to create dataflow_runs table: %w", err)
	}

	idempotencyTable := `
		CREATE TABLE IF NOT EXISTS dataflow_idempotency_keys (
			key_value VARCHAR(255) NOT NULL PRIMARY KEY,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`
	if _, err := m.db.ExecContext(ctx, idempotencyTable); err != nil {
		return fmt.Errorf("failed to create dataflow_idempotency_keys table: %w", err)
	}
	return nil
}

func (m *MySQLStore) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errClosed
	}
	return nil
}

// SaveRun implements Store.
func (m *MySQLStore) SaveRun(ctx context.Context, rec Record) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return saveRunSQL(ctx, m.db, mysqlDialect, rec)
}

// LoadRun implements Store.
func (m *MySQLStore) LoadRun(ctx context.Context, runID string) (Record, error) {
	if err := m.checkOpen(); err != nil {
		return Record{}, err
	}
	return loadRunSQL(ctx, m.db, runID)
}

// DeleteRun implements Store.
func (m *MySQLStore) DeleteRun(ctx context.Context, runID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return deleteRunSQL(ctx, m.db, runID)
}

// CheckIdempotency implements Store.
func (m *MySQLStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	if err := m.checkOpen(); err != nil {
		return false, err
	}
	return checkIdempotencySQL(ctx, m.db, key)
}

// Close closes the connection pool.
func (m *MySQLStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the server is reachable.
func (m *MySQLStore) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

// Stats returns connection pool statistics.
func (m *MySQLStore) Stats() sql.DBStats {
	return m.db.Stats()
}
