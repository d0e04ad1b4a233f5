package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dataflow-go/graph/store"
)

func sampleRecord(runID, key string) store.Record {
	return store.Record{
		RunID:      runID,
		Status:     "ok",
		FailedNode: -1,
		Variables: []store.VariableRecord{
			{Node: 1, Slot: 0, Removable: false, Value: json.RawMessage(`{"dtype":"float64","shape":[3],"data":[1,2,3]}`)},
			{Node: 1, Slot: 1, Removable: false, Placeholder: true},
			{Node: 100, Slot: 0, Removable: false, Value: json.RawMessage(`{"dtype":"bool","shape":[],"data":[0]}`)},
		},
		Branches:       map[int]int{1: 0},
		Executed:       []int{1, 2},
		Pruned:         []int{3},
		IdempotencyKey: key,
		Digest:         "blake3:00ff",
		Timestamp:      time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
}

// runStoreContract exercises the behavior every Store implementation
// shares. prefix keeps run ids and keys unique per backend.
func runStoreContract(t *testing.T, st store.Store, prefix string) {
	ctx := context.Background()
	runID := prefix + "-run"
	key := prefix + "-key"

	t.Run("load missing run", func(t *testing.T) {
		_, err := st.LoadRun(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		rec := sampleRecord(runID, key)
		require.NoError(t, st.SaveRun(ctx, rec))

		got, err := st.LoadRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, rec.RunID, got.RunID)
		assert.Equal(t, rec.Status, got.Status)
		assert.Equal(t, -1, got.FailedNode)
		assert.Equal(t, rec.Branches, got.Branches)
		assert.Equal(t, rec.Executed, got.Executed)
		assert.Equal(t, rec.Pruned, got.Pruned)
		assert.True(t, rec.Timestamp.Equal(got.Timestamp))
		require.Len(t, got.Variables, 3)
		assert.JSONEq(t, string(rec.Variables[0].Value), string(got.Variables[0].Value))
		assert.True(t, got.Variables[1].Placeholder)
		assert.Empty(t, got.Variables[1].Value)
	})

	t.Run("idempotency key committed", func(t *testing.T) {
		ok, err := st.CheckIdempotency(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = st.CheckIdempotency(ctx, prefix+"-unused")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("duplicate key rejected", func(t *testing.T) {
		dup := sampleRecord(runID, key)
		dup.Status = "failed"
		err := st.SaveRun(ctx, dup)
		assert.ErrorIs(t, err, store.ErrIdempotencyViolation)

		got, err := st.LoadRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, "ok", got.Status, "rejected save must not overwrite")
	})

	t.Run("new key replaces run", func(t *testing.T) {
		next := sampleRecord(runID, key+"-2")
		next.Status = "failed"
		next.FailedNode = 2
		next.Error = "node 2: boom"
		require.NoError(t, st.SaveRun(ctx, next))

		got, err := st.LoadRun(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, "failed", got.Status)
		assert.Equal(t, 2, got.FailedNode)
		assert.Equal(t, "node 2: boom", got.Error)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, st.DeleteRun(ctx, runID))
		_, err := st.LoadRun(ctx, runID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, st.DeleteRun(ctx, runID), store.ErrNotFound)

		ok, err := st.CheckIdempotency(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "deleting a run keeps its idempotency key")
	})
}

func TestCodecRoundTrip(t *testing.T) {
	rec := sampleRecord("codec", "k")
	data, err := store.EncodeRecord(rec)
	require.NoError(t, err)

	got, err := store.DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, rec.Branches, got.Branches)
	assert.Len(t, got.Variables, len(rec.Variables))
}

func TestCodecRejectsGarbage(t *testing.T) {
	_, err := store.DecodeRecord([]byte("not zstd"))
	assert.Error(t, err)
}

func TestCodecCompressesLargeRecords(t *testing.T) {
	rec := sampleRecord("large", "k")
	for i := 0; i < 500; i++ {
		rec.Variables = append(rec.Variables, store.VariableRecord{
			Node:  1000 + i,
			Value: json.RawMessage(fmt.Sprintf(`{"dtype":"float64","shape":[4],"data":[0,0,0,%d]}`, i%3)),
		})
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	data, err := store.EncodeRecord(rec)
	require.NoError(t, err)
	assert.Less(t, len(data), len(raw))
}
