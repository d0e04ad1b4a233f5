package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sqlDialect holds the statements that differ between SQL backends.
type sqlDialect struct {
	upsertRun string
}

// saveRunSQL writes rec and its idempotency key in one transaction.
func saveRunSQL(ctx context.Context, db *sql.DB, d sqlDialect, rec Record) (err error) {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback() // Ignore rollback error when already returning error
		}
	}()

	if rec.IdempotencyKey != "" {
		var count int
		err = tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM dataflow_idempotency_keys WHERE key_value = ?",
			rec.IdempotencyKey).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check idempotency key: %w", err)
		}
		if count > 0 {
			return ErrIdempotencyViolation
		}
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO dataflow_idempotency_keys (key_value) VALUES (?)",
			rec.IdempotencyKey); err != nil {
			return fmt.Errorf("idempotency key insert failed: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, d.upsertRun,
		rec.RunID,
		rec.Status,
		rec.IdempotencyKey,
		rec.Digest,
		data,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func loadRunSQL(ctx context.Context, db *sql.DB, runID string) (Record, error) {
	var data []byte
	err := db.QueryRowContext(ctx,
		"SELECT record FROM dataflow_runs WHERE run_id = ?", runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load run: %w", err)
	}
	return DecodeRecord(data)
}

func deleteRunSQL(ctx context.Context, db *sql.DB, runID string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM dataflow_runs WHERE run_id = ?", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func checkIdempotencySQL(ctx context.Context, db *sql.DB, key string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM dataflow_idempotency_keys WHERE key_value = ?", key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return count > 0, nil
}
