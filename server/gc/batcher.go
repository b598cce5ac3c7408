package gc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"
	"golang.org/x/exp/maps"

	"github.com/tidecore/revgc/server/extsort"
	"github.com/tidecore/revgc/server/nodestore"
	"github.com/tidecore/revgc/server/util"
	"github.com/tidecore/revgc/server/util/log"
)

// batcher implements the deletion batcher (C3): it buffers candidate ids
// (leaf vs non-leaf), flushes leaf batches eagerly, and defers non-leaf and
// previous-doc deletion until RemoveDocuments runs the sorted passes. stats
// is owned by the caller for the duration of one run and accumulated into
// directly, so every flush — eager or final — is counted the same way.
type batcher struct {
	store    nodestore.DocumentStore
	resolver NodeStateResolver
	head     RevisionVector
	timer    *phaseTimer
	stats    *VersionGCStats

	leafIDs  []string
	nonLeaf  *extsort.StringSort
	previous *extsort.StringSort
	exclude  map[string]struct{}

	totalQueued        int
	cumulativeProgress int
	lastLoggedProgress int
}

func newBatcher(store nodestore.DocumentStore, resolver NodeStateResolver, head RevisionVector, timer *phaseTimer, stats *VersionGCStats, cfg config) *batcher {
	opts := []extsort.Option{
		extsort.WithOverflowToDiskThreshold(cfg.overflowToDiskThreshold),
		extsort.WithMergeFanoutLimit(cfg.mergeFanoutLimit),
	}
	if cfg.scratchDir != "" {
		opts = append(opts, extsort.WithScratchDir(cfg.scratchDir))
	}
	return &batcher{
		store:    store,
		resolver: resolver,
		head:     head,
		timer:    timer,
		stats:    stats,
		nonLeaf:  extsort.NewStringSort(nodestore.NodeDocumentIdComparator, opts...),
		previous: extsort.NewStringSort(nodestore.NodeDocumentIdComparator, opts...),
		exclude:  map[string]struct{}{},
	}
}

// PossiblyDeleted processes one candidate returned by the store's index
// query: it validates the id, re-verifies liveness against head, gathers
// previous-doc ids, and files the candidate as a leaf or non-leaf.
func (b *batcher) PossiblyDeleted(ctx context.Context, doc *nodestore.NodeDocument) error {
	if _, _, err := nodestore.ParseNodeID(doc.ID); err != nil {
		log.Warnf(ctx, "dropping candidate with malformed id %q: %v", doc.ID, err)
		return nil
	}
	composite := nodestore.FormatCompositeID(doc.ID, doc.ModifiedInSecs)

	present, err := b.resolver(ctx, b.store, doc.ID, b.head)
	if err != nil {
		return &nodestore.StoreIOError{Op: "resolve node state", Err: err}
	}
	if present {
		return nil
	}

	var prevIDs []string
	if err := previousDocIDs(ctx, b.store, doc, func(id string) error {
		prevIDs = append(prevIDs, id)
		return nil
	}); err != nil {
		return err
	}

	b.totalQueued++
	if !doc.HasChildren && len(prevIDs) == 0 {
		b.leafIDs = append(b.leafIDs, composite)
		if len(b.leafIDs) >= deleteBatchSize {
			return b.flushLeaves(ctx)
		}
		return nil
	}

	if err := b.nonLeaf.Add(ctx, composite); err != nil {
		return err
	}
	for _, id := range prevIDs {
		if err := b.previous.Add(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// flushLeaves deletes whatever leaf ids are currently buffered, whether
// called eagerly mid-collection or one final time from RemoveDocuments. It
// suspends the collecting phase timer for the duration of the delete, as
// the distilled control flow requires, and always accumulates into
// b.stats — an eagerly flushed batch is still a real store removal.
func (b *batcher) flushLeaves(ctx context.Context) error {
	if len(b.leafIDs) == 0 {
		return nil
	}
	ids := b.leafIDs
	b.leafIDs = nil

	b.timer.Start(PhaseDeleting)
	defer b.timer.Stop(PhaseDeleting)

	removed, recreated, err := b.removeConditionally(ctx, ids)
	if err != nil {
		return err
	}
	b.stats.DeletedLeafDocGCCount += removed
	b.stats.DeletedDocGCCount += removed
	b.stats.RecreatedCount += recreated
	b.cumulativeProgress += removed + recreated
	b.maybeLogProgress(ctx)
	return nil
}

// RemoveDocuments flushes remaining leaf ids, deletes the sorted non-leaf
// set with conditional remove, then deletes the previous-doc set filtered
// by the exclude set built up along the way. Finalizing each sorted set
// (which triggers its spill merge) is timed as SORTING; the batched
// deletes that follow are timed as DELETING, matching the distinct
// SORTING-then-DELETING phase sequence.
func (b *batcher) RemoveDocuments(ctx context.Context, cancel func() bool) error {
	if err := b.flushLeaves(ctx); err != nil {
		return err
	}

	b.timer.Start(PhaseSorting)
	nonLeafIDs, err := b.nonLeaf.Ids(ctx)
	b.timer.Stop(PhaseSorting)
	if err != nil {
		return err
	}
	defer func() { _ = nonLeafIDs.Close() }()

	batch := make([]string, 0, deleteBatchSize)
	for {
		if cancel() {
			b.stats.Canceled = true
			break
		}
		id, ok, err := nonLeafIDs.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		batch = append(batch, id)
		if len(batch) >= deleteBatchSize {
			if err := b.flushNonLeafBatch(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 && !b.stats.Canceled {
		if err := b.flushNonLeafBatch(ctx, batch); err != nil {
			return err
		}
	}

	if b.stats.Canceled {
		return nil
	}

	b.timer.Start(PhaseSorting)
	prevIDs, err := b.previous.Ids(ctx)
	b.timer.Stop(PhaseSorting)
	if err != nil {
		return err
	}
	defer func() { _ = prevIDs.Close() }()

	prevBatch := make([]string, 0, deleteBatchSize)
	for {
		if cancel() {
			b.stats.Canceled = true
			break
		}
		id, ok, err := prevIDs.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if _, excluded := b.exclude[id]; excluded {
			continue
		}
		prevBatch = append(prevBatch, id)
		if len(prevBatch) >= deleteBatchSize {
			if err := b.flushPreviousBatch(ctx, prevBatch); err != nil {
				return err
			}
			prevBatch = prevBatch[:0]
		}
	}
	if len(prevBatch) > 0 && !b.stats.Canceled {
		if err := b.flushPreviousBatch(ctx, prevBatch); err != nil {
			return err
		}
	}
	return nil
}

func (b *batcher) flushNonLeafBatch(ctx context.Context, batch []string) error {
	b.timer.Start(PhaseDeleting)
	defer b.timer.Stop(PhaseDeleting)

	removed, recreated, err := b.removeConditionally(ctx, batch)
	if err != nil {
		return err
	}
	b.stats.DeletedDocGCCount += removed
	b.stats.RecreatedCount += recreated
	b.cumulativeProgress += removed + recreated
	b.maybeLogProgress(ctx)
	return nil
}

func (b *batcher) flushPreviousBatch(ctx context.Context, batch []string) error {
	b.timer.Start(PhaseDeleting)
	defer b.timer.Stop(PhaseDeleting)

	removed, err := b.store.RemoveAll(ctx, batch)
	if err != nil {
		return &nodestore.StoreIOError{Op: "RemoveAll", Err: err}
	}
	b.stats.DeletedPrevDocGCCount += removed
	b.cumulativeProgress += removed
	b.maybeLogProgress(ctx)
	return nil
}

// removeConditionally parses each composite id, builds a {id: observed
// modified} condition map, and issues one conditional Remove call. If fewer
// documents were removed than requested, every id in the batch is
// re-fetched; any that are still present were recreated after observation,
// and their previous-doc ids are added to the exclude set so they are not
// deleted by a later pass.
func (b *batcher) removeConditionally(ctx context.Context, composites []string) (removed int, recreated int, err error) {
	conditions := make(map[string]nodestore.ModifiedEquals, len(composites))
	for _, composite := range composites {
		id, modified, perr := nodestore.ParseCompositeID(composite)
		var malformed *nodestore.MalformedCompositeIDError
		if errors.As(perr, &malformed) {
			log.Warnf(ctx, "dropping malformed composite id %q", composite)
			continue
		}
		var invalidSuffix *nodestore.InvalidModifiedSuffixError
		if errors.As(perr, &invalidSuffix) {
			log.Warnf(ctx, "invalid modified suffix in composite id %q, substituting -1", composite)
		}
		conditions[id] = nodestore.ModifiedEquals(modified)
	}
	if len(conditions) == 0 {
		return 0, 0, nil
	}

	keys := maps.Keys(conditions)
	sort.Strings(keys)
	log.Debugw(ctx, "deleting batch", "fingerprint", batchFingerprint(keys), "size", len(keys))

	n, err := b.store.Remove(ctx, conditions)
	if err != nil {
		return 0, 0, &nodestore.StoreIOError{Op: "Remove", Err: err}
	}
	recreated = len(conditions) - n
	if recreated > 0 {
		for id := range conditions {
			doc, ferr := b.store.Find(ctx, id)
			if ferr != nil {
				return n, recreated, &nodestore.StoreIOError{Op: "Find", Err: ferr}
			}
			if doc == nil {
				continue
			}
			if err := previousDocIDs(ctx, b.store, doc, func(pid string) error {
				b.exclude[pid] = struct{}{}
				return nil
			}); err != nil {
				return n, recreated, err
			}
		}
	}
	return n, recreated, nil
}

func (b *batcher) maybeLogProgress(ctx context.Context) {
	if b.cumulativeProgress-b.lastLoggedProgress < progressBatchSize {
		return
	}
	b.lastLoggedProgress = b.cumulativeProgress
	percent := 0.0
	if b.totalQueued > 0 {
		percent = float64(b.cumulativeProgress) / float64(b.totalQueued) * 100
	}
	log.Infow(ctx, "gc progress", "deleted_or_recreated", b.cumulativeProgress, "percent", fmt.Sprintf("%.1f", percent))
}

func (b *batcher) Close() error {
	return util.CloseAll(b.nonLeaf, b.previous)
}

func batchFingerprint(keys []string) string {
	h := murmur3.New32()
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
	}
	return fmt.Sprintf("%08x", h.Sum32())
}
