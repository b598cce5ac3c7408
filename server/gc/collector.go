package gc

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tidecore/revgc/server/checkpoint"
	"github.com/tidecore/revgc/server/clock"
	"github.com/tidecore/revgc/server/nodestore"
	"github.com/tidecore/revgc/server/util/log"
)

// job tracks the single collection run currently in flight, if any.
type job struct {
	id     string
	cancel atomic.Bool
}

// Collector is the revision garbage collector's job orchestrator. It runs
// at most one collection at a time: a second caller's GC fails fast with
// ErrAlreadyRunning rather than queuing behind, or coalescing with, the
// run already in progress.
type Collector struct {
	store       nodestore.DocumentStore
	checkpoints checkpoint.Registry
	clock       clock.Clock
	resolver    NodeStateResolver
	splitDocs   SplitDocDelegate
	cfg         config

	active atomic.Pointer[job]
}

// New constructs a Collector. resolver and splitDocs may be nil, in which
// case DefaultNodeStateResolver is used and split-doc cleanup is skipped.
func New(store nodestore.DocumentStore, checkpoints checkpoint.Registry, clk clock.Clock, resolver NodeStateResolver, splitDocs SplitDocDelegate, opts ...Option) (*Collector, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.optErr != nil {
		return nil, cfg.optErr
	}
	if resolver == nil {
		resolver = DefaultNodeStateResolver
	}
	return &Collector{
		store:       store,
		checkpoints: checkpoints,
		clock:       clk,
		resolver:    resolver,
		splitDocs:   splitDocs,
		cfg:         cfg,
	}, nil
}

// SetOverflowToDiskThreshold adjusts the spill threshold used by
// subsequent runs. It exists for callers that want to react to observed
// memory pressure without reconstructing the Collector.
func (c *Collector) SetOverflowToDiskThreshold(n int) {
	c.cfg.overflowToDiskThreshold = n
}

// Cancel requests that the currently active run, if any, stop at its next
// batch boundary. It is a no-op if no run is active, and safe to call
// concurrently and repeatedly.
func (c *Collector) Cancel() {
	if j := c.active.Load(); j != nil {
		j.cancel.Store(true)
	}
}

// GC runs one collection pass, deleting main documents (and their previous
// documents) that were last modified more than maxAge ago and are no
// longer present at head, subject to the checkpoint gate. It returns
// ErrAlreadyRunning if another run is already active.
func (c *Collector) GC(ctx context.Context, maxAge time.Duration) (VersionGCStats, error) {
	j := &job{id: uuid.New().String()}
	if !c.active.CompareAndSwap(nil, j) {
		return VersionGCStats{}, ErrAlreadyRunning
	}
	defer c.active.Store(nil)

	ctx = log.AddTags(ctx, "gc_run_id", j.id)
	stats := VersionGCStats{RunID: j.id}
	log.Infow(ctx, "starting gc run", "max_age", maxAge.String())

	timer := newPhaseTimer()
	defer func() {
		stats.Timers, stats.Elapsed = timer.Close()
		log.Infow(ctx, "finished gc run",
			"deleted", stats.DeletedDocGCCount,
			"deleted_leaf", stats.DeletedLeafDocGCCount,
			"deleted_previous", stats.DeletedPrevDocGCCount,
			"recreated", stats.RecreatedCount,
			"canceled", stats.Canceled,
			"elapsed", stats.Elapsed.String())
	}()

	cutoffMillis, err := c.resolveCutoff(maxAge)
	if err != nil {
		return stats, err
	}

	if blocked, oldest, err := c.checkpointBlocks(ctx, cutoffMillis); err != nil {
		return stats, err
	} else if blocked {
		stats.IgnoredGCDueToCheckPoint = true
		log.Warnf(ctx, "gc run %s skipped: checkpoint %s is older than cutoff", j.id, oldest.ReadableString())
		return stats, nil
	}

	cutoffSeconds := cutoffMillis / 1000
	head := RevisionVector{CapturedAtMillis: c.clock.NowMillis()}
	b := newBatcher(c.store, c.resolver, head, timer, &stats, c.cfg)
	defer func() { _ = b.Close() }()

	timer.Start(PhaseCollecting)
	err = c.collect(ctx, j, cutoffSeconds, b)
	timer.Stop(PhaseCollecting)
	if err != nil {
		return stats, err
	}
	if j.cancel.Load() {
		stats.Canceled = true
		return stats, nil
	}

	// RemoveDocuments times its own sort-finalization and delete passes
	// as SORTING and DELETING respectively; it is not wrapped here.
	if err := b.RemoveDocuments(ctx, j.cancel.Load); err != nil {
		return stats, err
	}

	if stats.Canceled {
		return stats, nil
	}

	if c.splitDocs != nil {
		timer.Start(PhaseSplitsCleanup)
		err = c.splitDocs.DeleteSplitDocuments(ctx, []SplitDocType{SplitDocDefaultLeaf, SplitDocCommitRootOnly}, cutoffSeconds, &stats)
		timer.Stop(PhaseSplitsCleanup)
		if err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (c *Collector) resolveCutoff(maxAge time.Duration) (int64, error) {
	if c.cfg.oldestRevisionOverride != nil {
		return c.cfg.oldestRevisionOverride.UnixMilli(), nil
	}
	return c.clock.NowMillis() - maxAge.Milliseconds(), nil
}

// checkpointBlocks reports whether a registered checkpoint is older than
// cutoffMillis, in which case the run must not proceed: deleting anything
// the checkpoint's owner might still read behind would violate the
// checkpoint safety invariant.
func (c *Collector) checkpointBlocks(ctx context.Context, cutoffMillis int64) (bool, checkpoint.Revision, error) {
	if c.checkpoints == nil {
		return false, checkpoint.Revision{}, nil
	}
	oldest, err := c.checkpoints.OldestRevisionToKeep(ctx)
	if err != nil {
		return false, checkpoint.Revision{}, &nodestore.StoreIOError{Op: "OldestRevisionToKeep", Err: err}
	}
	if oldest == nil {
		return false, checkpoint.Revision{}, nil
	}
	if oldest.TimestampMillis() < cutoffMillis {
		return true, *oldest, nil
	}
	return false, checkpoint.Revision{}, nil
}

// collect streams every main document modified before cutoffSeconds from
// the store's index, feeding each to the batcher, checking for
// cancellation before each document.
func (c *Collector) collect(ctx context.Context, j *job, cutoffSeconds int64, b *batcher) error {
	it, err := c.store.Query(ctx, nodestore.ModifiedBefore(cutoffSeconds))
	if err != nil {
		return &nodestore.StoreIOError{Op: "Query", Err: err}
	}
	defer func() { _ = it.Close() }()

	for {
		if j.cancel.Load() {
			return nil
		}
		doc, ok, err := it.Next()
		if err != nil {
			return &nodestore.StoreIOError{Op: "Query.Next", Err: err}
		}
		if !ok {
			return nil
		}
		if err := b.PossiblyDeleted(ctx, doc); err != nil {
			return err
		}
	}
}
