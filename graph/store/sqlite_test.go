package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dataflow-go/graph/store"
)

func newSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "dataflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, newSQLiteStore(t), "sqlite")
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	st, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, st.SaveRun(ctx, sampleRecord("r", "k")))
	require.NoError(t, st.Close())

	st, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.LoadRun(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got.Executed)

	err = st.SaveRun(ctx, sampleRecord("r", "k"))
	assert.ErrorIs(t, err, store.ErrIdempotencyViolation)
}

func TestSQLiteStore_Closed(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "closed.db"))
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close(), "second close is a no-op")

	assert.Error(t, st.SaveRun(ctx, sampleRecord("r", "k")))
	_, err = st.LoadRun(ctx, "r")
	assert.Error(t, err)
	assert.Error(t, st.Ping(ctx))
}
