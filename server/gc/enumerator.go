package gc

import (
	"context"

	"github.com/tidecore/revgc/server/nodestore"
	"github.com/tidecore/revgc/server/util"
	"github.com/tidecore/revgc/server/util/log"
)

// previousDocIDs streams the ids of every previous document belonging to
// doc through emit, without materializing them into a slice when a store
// read is required. When every range is first-level (height 0), ids are
// derived without touching the store at all.
func previousDocIDs(ctx context.Context, store nodestore.DocumentStore, doc *nodestore.NodeDocument, emit func(id string) error) error {
	if len(doc.PreviousRanges) == 0 {
		return nil
	}
	if doc.HasOnlyFirstLevelPrevious() {
		for revision := range doc.PreviousRanges {
			id, err := nodestore.PreviousIDFor(doc.ID, revision)
			if err != nil {
				log.Warnf(ctx, "skipping undecodable previous range for %q revision %q: %v", doc.ID, revision, err)
				continue
			}
			if err := emit(id); err != nil {
				return err
			}
		}
		return nil
	}
	it, err := store.AllPreviousDocs(ctx, doc)
	if err != nil {
		return &nodestore.StoreIOError{Op: "AllPreviousDocs", Err: err}
	}
	defer util.MaybeWarn(ctx, it.Close)
	for {
		id, ok, err := it.Next()
		if err != nil {
			return &nodestore.StoreIOError{Op: "AllPreviousDocs.Next", Err: err}
		}
		if !ok {
			return nil
		}
		if err := emit(id); err != nil {
			return err
		}
	}
}
