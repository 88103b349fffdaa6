package testdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"campusevents/internal/memstore"
)

// Memory opens a fresh in-memory store that is closed when the test ends.
// Unlike SetupSharedPostgres it needs no container and is safe for parallel tests.
func Memory(t testing.TB) *memstore.Store {
	t.Helper()
	st, err := memstore.Open(context.Background(), nil)
	require.NoError(t, err, "open memory store")
	t.Cleanup(func() { _ = st.Close() })
	return st
}
