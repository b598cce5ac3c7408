package gc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidecore/revgc/server/checkpoint"
	"github.com/tidecore/revgc/server/clock"
	"github.com/tidecore/revgc/server/nodestore"
)

type fakeCheckpoints struct {
	oldest *checkpoint.Revision
	err    error
}

func (f *fakeCheckpoints) OldestRevisionToKeep(context.Context) (*checkpoint.Revision, error) {
	return f.oldest, f.err
}

func newTestCollector(t *testing.T, store nodestore.DocumentStore, ckpts checkpoint.Registry, clk clock.Clock) *Collector {
	t.Helper()
	c, err := New(store, ckpts, clk, nil, nil, WithOverflowToDiskThreshold(1000))
	require.NoError(t, err)
	return c
}

func TestCollectorDeletesOldUnreferencedDocuments(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	id, err := nodestore.NewNodeID("stale")
	require.NoError(t, err)
	store.put(&nodestore.NodeDocument{ID: id, ModifiedInSecs: 0, Deleted: true})

	clk := clock.NewFakeClock(1_000 * 24 * 60 * 60 * 1000) // far in the future
	c := newTestCollector(t, store, nil, clk)

	stats, err := c.GC(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.False(t, stats.IgnoredGCDueToCheckPoint)
	require.Equal(t, 1, stats.DeletedDocGCCount)

	found, err := store.Find(ctx, id)
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestCollectorCheckpointBlocksRun(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	id, err := nodestore.NewNodeID("stale")
	require.NoError(t, err)
	store.put(&nodestore.NodeDocument{ID: id, ModifiedInSecs: 0, Deleted: true})

	clk := clock.NewFakeClock(1_000 * 24 * 60 * 60 * 1000)
	oldest := checkpoint.NewRevision(1) // pinned far in the past, before the cutoff
	ckpts := &fakeCheckpoints{oldest: &oldest}
	c := newTestCollector(t, store, ckpts, clk)

	stats, err := c.GC(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.True(t, stats.IgnoredGCDueToCheckPoint)
	require.Equal(t, 0, stats.DeletedDocGCCount)

	found, err := store.Find(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestCollectorRejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clk := clock.NewFakeClock(0)
	c := newTestCollector(t, store, nil, clk)

	j := &job{id: "in-flight"}
	require.True(t, c.active.CompareAndSwap(nil, j))
	defer c.active.Store(nil)

	_, err := c.GC(ctx, time.Hour)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestCollectorCancelStopsRunEarly(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	for i := 0; i < deleteBatchSize*2; i++ {
		id, err := nodestore.NewNodeID("node",
			string(rune('a'+i%26)),
			string(rune('a'+(i/26)%26)),
			string(rune('a'+(i/676)%26)),
		)
		require.NoError(t, err)
		store.put(&nodestore.NodeDocument{ID: id, ModifiedInSecs: 0, Deleted: true})
	}

	clk := clock.NewFakeClock(1_000 * 24 * 60 * 60 * 1000)
	c := newTestCollector(t, store, nil, clk)

	j := &job{id: "precanceled"}
	j.cancel.Store(true)
	var stats VersionGCStats
	timer := newPhaseTimer()
	b := newBatcher(store, c.resolver, RevisionVector{}, timer, &stats, c.cfg)
	defer func() { _ = b.Close() }()

	require.NoError(t, c.collect(ctx, j, 999_999_999, b))

	found := 0
	allDocs, err := store.Query(ctx, nodestore.ModifiedBefore(999_999_999))
	require.NoError(t, err)
	for {
		_, ok, err := allDocs.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		found++
	}
	require.Equal(t, deleteBatchSize*2, found, "canceled collect must not have deleted anything")

	require.NoError(t, b.RemoveDocuments(ctx, j.cancel.Load))
	require.True(t, stats.Canceled)
}

func TestCollectorOldestRevisionOverride(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	id, err := nodestore.NewNodeID("stale")
	require.NoError(t, err)
	store.put(&nodestore.NodeDocument{ID: id, ModifiedInSecs: 10, Deleted: true})

	clk := clock.NewFakeClock(0)
	c, err := New(store, nil, clk, nil, nil,
		WithOverflowToDiskThreshold(1000),
		WithOldestRevisionOverride("2286-11-20T17:46:40Z"), // far future, well past modified=10s
	)
	require.NoError(t, err)

	stats, err := c.GC(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, stats.DeletedDocGCCount)
}

func TestWithOldestRevisionOverrideRejectsInvalidTimestamp(t *testing.T) {
	_, err := New(newFakeStore(), nil, clock.NewFakeClock(0), nil, nil,
		WithOldestRevisionOverride("not-a-timestamp"))
	require.Error(t, err)
}

func TestCollectorPropagatesCheckpointStoreError(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	clk := clock.NewFakeClock(0)
	ckpts := &fakeCheckpoints{err: errors.New("boom")}
	c := newTestCollector(t, store, ckpts, clk)

	_, err := c.GC(ctx, time.Hour)
	require.Error(t, err)
}
