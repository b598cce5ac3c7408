// Package nodestore defines the document-store contract the revision garbage
// collector runs against: node documents, path-depth encoded identifiers, the
// comparator that gives external-memory sorts a deterministic order, and the
// DocumentStore interface itself. A SQLite-backed reference implementation
// lives in the sibling sqlitestore package.
package nodestore
