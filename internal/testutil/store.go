// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/linkfeed/internal/model"
	"github.com/nhle/linkfeed/internal/store"
)

// NewTestStore opens a migrated in-memory SQLite store that is closed
// when the test ends.
func NewTestStore(t testing.TB) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err, "opening in-memory store")
	t.Cleanup(func() {
		require.NoError(t, s.Close(), "closing in-memory store")
	})
	return s
}

// SeedRecords inserts recs in order and fails the test if any of them
// is rejected or turns out to be a duplicate.
func SeedRecords(t testing.TB, s store.Store, recs ...model.FeedLinkRecord) {
	t.Helper()

	ctx := context.Background()
	for i, rec := range recs {
		inserted, err := s.InsertIfAbsent(ctx, rec)
		require.NoErrorf(t, err, "seeding record %d", i)
		require.Truef(t, inserted, "record %d (%s, %s) already present", i, rec.SenderEmail, rec.CoreLink)
	}
}
