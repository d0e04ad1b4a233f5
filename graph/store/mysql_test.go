package store_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/dataflow-go/graph/store"
)

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL tests: TEST_MYSQL_DSN not set")
	}

	st, err := store.NewMySQLStore(dsn)
	require.NoError(t, err)
	defer st.Close()

	runStoreContract(t, st, fmt.Sprintf("mysql-%d", time.Now().UnixNano()))
}

func TestMySQLStore_InvalidDSN(t *testing.T) {
	if os.Getenv("TEST_MYSQL_DSN") == "" {
		t.Skip("Skipping MySQL tests: TEST_MYSQL_DSN not set")
	}
	_, err := store.NewMySQLStore("invalid:dsn:string")
	require.Error(t, err)
}
