package gc

import (
	"context"

	"github.com/tidecore/revgc/server/nodestore"
)

// RevisionVector identifies the head revision a run resolves candidates
// against. The core treats it as opaque; the reference resolver only needs
// enough of it to be threaded through to callers for logging.
type RevisionVector struct {
	CapturedAtMillis int64
}

// NodeStateResolver decides whether a candidate id is a live node at head.
// It is named-interface-only in the sense that the core never constructs
// one itself: callers inject it, and the reference implementation below is
// one reasonable choice among many a production store might make.
type NodeStateResolver func(ctx context.Context, store nodestore.DocumentStore, id string, head RevisionVector) (present bool, err error)

// DefaultNodeStateResolver treats a candidate as present if a NodeDocument
// exists for its id and its Deleted flag is false. This is sufficient for
// the reference store, which has no separate revision history to consult,
// and is deliberately not a full multi-revision resolver.
func DefaultNodeStateResolver(ctx context.Context, store nodestore.DocumentStore, id string, _ RevisionVector) (bool, error) {
	doc, err := store.Find(ctx, id)
	if err != nil {
		return false, &nodestore.StoreIOError{Op: "Find", Err: err}
	}
	if doc == nil {
		return false, nil
	}
	return !doc.Deleted, nil
}
