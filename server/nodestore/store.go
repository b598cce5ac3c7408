package nodestore

import "context"

// ModifiedBefore is a query selecting main documents whose ModifiedInSecs is
// strictly less than the cutoff.
type ModifiedBefore int64

// ModifiedEquals is a conditional-remove predicate: the condition holds only
// if the document's current ModifiedInSecs equals the observed value.
type ModifiedEquals int64

// NodeDocumentIterator is a forward-only, closeable sequence of main
// documents. Next returns (nil, false, nil) once exhausted.
type NodeDocumentIterator interface {
	Next() (doc *NodeDocument, ok bool, err error)
	Close() error
}

// IDIterator is a forward-only, closeable sequence of document ids.
type IDIterator interface {
	Next() (id string, ok bool, err error)
	Close() error
}

// DocumentStore is the document-store contract the garbage collector runs
// against. Implementations must make Query lazy and closeable, and must make
// Remove atomic per entry: each id's condition check and delete happen as one
// unit, even if the batch as a whole is not transactional.
type DocumentStore interface {
	// Query returns every main document modified before cutoff. The store
	// may return false positives (documents that are not actually deleted);
	// the collector re-verifies against the node-state resolver.
	Query(ctx context.Context, cutoff ModifiedBefore) (NodeDocumentIterator, error)

	// Find returns the document with the given id, or (nil, nil) if absent.
	Find(ctx context.Context, id string) (*NodeDocument, error)

	// Remove deletes every id in conditions whose current ModifiedInSecs
	// equals the paired ModifiedEquals value, and returns the number
	// actually removed.
	Remove(ctx context.Context, conditions map[string]ModifiedEquals) (int, error)

	// RemoveAll unconditionally deletes the given ids and returns the
	// number actually removed.
	RemoveAll(ctx context.Context, ids []string) (int, error)

	// AllPreviousDocs enumerates the ids of every previous document
	// belonging to doc, for the case where the ranges are not all height 0
	// and so cannot be derived without a read.
	AllPreviousDocs(ctx context.Context, doc *NodeDocument) (IDIterator, error)
}
