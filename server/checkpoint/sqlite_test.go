package checkpoint_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidecore/revgc/server/checkpoint"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestSQLiteRegistry(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	registry, err := checkpoint.NewSQLiteRegistry(ctx, db)
	require.NoError(t, err)

	t.Run("no registered clients", func(t *testing.T) {
		rev, err := registry.OldestRevisionToKeep(ctx)
		require.NoError(t, err)
		require.Nil(t, rev)
	})

	t.Run("tracks the oldest of several clients", func(t *testing.T) {
		require.NoError(t, registry.Register(ctx, "reader-a", 2000))
		require.NoError(t, registry.Register(ctx, "reader-b", 1000))
		require.NoError(t, registry.Register(ctx, "reader-c", 3000))

		rev, err := registry.OldestRevisionToKeep(ctx)
		require.NoError(t, err)
		require.NotNil(t, rev)
		require.Equal(t, int64(1000), rev.TimestampMillis())
	})

	t.Run("updates on re-register", func(t *testing.T) {
		require.NoError(t, registry.Register(ctx, "reader-b", 500))
		rev, err := registry.OldestRevisionToKeep(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(500), rev.TimestampMillis())
	})

	t.Run("release removes a client's pin", func(t *testing.T) {
		require.NoError(t, registry.Release(ctx, "reader-b"))
		rev, err := registry.OldestRevisionToKeep(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2000), rev.TimestampMillis())
	})
}

func TestRevisionReadableString(t *testing.T) {
	rev := checkpoint.NewRevision(1700000000000)
	require.Contains(t, rev.ReadableString(), "1700000000000ms")
}
