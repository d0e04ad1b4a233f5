package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis.
//
// Records live under "<prefix>:run:<runID>" and committed idempotency keys
// under "<prefix>:idem:<key>". A TTL of zero keeps records forever.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to the server described by url
// (e.g. "redis://localhost:6379/0") and verifies the connection.
func NewRedisStore(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisStoreFromClient(ctx, redis.NewClient(opts), prefix, ttl)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(ctx context.Context, client *redis.Client, prefix string, ttl time.Duration) (*RedisStore, error) {
	if prefix == "" {
		prefix = "dataflow"
	}
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (r *RedisStore) runKey(runID string) string {
	return fmt.Sprintf("%s:run:%s", r.prefix, runID)
}

func (r *RedisStore) idemKey(key string) string {
	return fmt.Sprintf("%s:idem:%s", r.prefix, key)
}

// SaveRun implements Store. The idempotency key is claimed with SETNX
// before the record is written and released again if the write fails.
func (r *RedisStore) SaveRun(ctx context.Context, rec Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	if rec.IdempotencyKey != "" {
		ok, err := r.client.SetNX(ctx, r.idemKey(rec.IdempotencyKey), rec.RunID, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if !ok {
			return ErrIdempotencyViolation
		}
	}

	if err := r.client.Set(ctx, r.runKey(rec.RunID), data, r.ttl).Err(); err != nil {
		if rec.IdempotencyKey != "" {
			_ = r.client.Del(ctx, r.idemKey(rec.IdempotencyKey)).Err()
		}
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LoadRun implements Store.
func (r *RedisStore) LoadRun(ctx context.Context, runID string) (Record, error) {
	data, err := r.client.Get(ctx, r.runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load run: %w", err)
	}
	return DecodeRecord(data)
}

// DeleteRun implements Store.
func (r *RedisStore) DeleteRun(ctx context.Context, runID string) error {
	n, err := r.client.Del(ctx, r.runKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckIdempotency implements Store.
func (r *RedisStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.idemKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
