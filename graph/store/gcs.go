package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStore is a Store backed by Google Cloud Storage.
//
// Each record is one object under "<prefix>/runs/". Idempotency keys are
// empty objects under "<prefix>/idempotency/", created with a
// DoesNotExist precondition so that only one writer can commit a key.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	owned  bool
}

// NewGCSStore creates a client with default credentials for bucket.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	st := NewGCSStoreFromClient(client, bucket, prefix)
	st.owned = true
	return st, nil
}

// NewGCSStoreFromClient wraps an existing client. Close does not close it.
func NewGCSStoreFromClient(client *storage.Client, bucket, prefix string) *GCSStore {
	if prefix == "" {
		prefix = "dataflow"
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}
}

func (g *GCSStore) runObject(runID string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(path.Join(g.prefix, "runs", runID+".rec"))
}

func (g *GCSStore) idemObject(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(path.Join(g.prefix, "idempotency", key))
}

// SaveRun implements Store.
func (g *GCSStore) SaveRun(ctx context.Context, rec Record) error {
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}

	if rec.IdempotencyKey != "" {
		w := g.idemObject(rec.IdempotencyKey).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
		w.ContentType = "text/plain"
		if _, err := io.WriteString(w, rec.RunID); err != nil {
			_ = w.Close()
			return fmt.Errorf("writing idempotency key: %w", err)
		}
		if err := w.Close(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
				return ErrIdempotencyViolation
			}
			return fmt.Errorf("committing idempotency key: %w", err)
		}
	}

	w := g.runObject(rec.RunID).NewWriter(ctx)
	w.ContentType = "application/zstd"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("uploading run record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing GCS writer: %w", err)
	}
	return nil
}

// LoadRun implements Store.
func (g *GCSStore) LoadRun(ctx context.Context, runID string) (Record, error) {
	r, err := g.runObject(runID).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("opening run record %q: %w", runID, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return Record{}, fmt.Errorf("downloading run record %q: %w", runID, err)
	}
	return DecodeRecord(data)
}

// DeleteRun implements Store.
func (g *GCSStore) DeleteRun(ctx context.Context, runID string) error {
	err := g.runObject(runID).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting run record %q: %w", runID, err)
	}
	return nil
}

// CheckIdempotency implements Store.
func (g *GCSStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	_, err := g.idemObject(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting idempotency key attributes: %w", err)
	}
	return true, nil
}

// Close closes the client if the store created it.
func (g *GCSStore) Close() error {
	if !g.owned {
		return nil
	}
	return g.client.Close()
}
