// Package gc implements the revision garbage collector: the deletion
// batcher, previous-document enumerator, phase timer, and single-instance
// job orchestrator that run against a server/nodestore.DocumentStore. The
// document store, checkpoint registry, clock, and node-state resolver are
// all injected collaborators; this package owns no storage of its own.
package gc
