package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/evtrack/internal/blob"
	"github.com/roach88/evtrack/internal/event"
	"github.com/roach88/evtrack/internal/testutil"
)

// openTestStore opens a BatchStore named "events" on blobs.
func openTestStore(t *testing.T, blobs blob.Store, batchSize int, opts ...BatchOption) *BatchStore {
	t.Helper()
	s, err := OpenBatchStore(context.Background(), blobs, "events", batchSize, opts...)
	require.NoError(t, err)
	return s
}

// storeAll stores every event, failing the test on the first error.
func storeAll(t *testing.T, s EventStore, events []event.Event) {
	t.Helper()
	for i, e := range events {
		require.NoError(t, s.Store(context.Background(), e), "store event %d", i)
	}
}

// names reads every event and returns their names.
func names(t *testing.T, s EventStore) []string {
	t.Helper()
	all, err := s.AllEvents(context.Background())
	require.NoError(t, err)
	return testutil.Names(all)
}

func batchAddr(i int) blob.Address {
	return blob.Address{Name: "events", Index: i}
}
