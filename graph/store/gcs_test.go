package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/dataflow-go/graph/store"
)

func TestGCSStore(t *testing.T) {
	bucket := os.Getenv("TEST_GCS_BUCKET")
	if bucket == "" {
		t.Skip("Skipping GCS tests: TEST_GCS_BUCKET not set")
	}

	prefix := fmt.Sprintf("dataflow-test/%d", time.Now().UnixNano())
	st, err := store.NewGCSStore(context.Background(), bucket, prefix)
	require.NoError(t, err)
	defer st.Close()

	runStoreContract(t, st, "gcs")
}
