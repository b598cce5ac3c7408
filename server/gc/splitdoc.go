package gc

import "context"

// SplitDocType identifies a class of previous (split) document for the
// purposes of the split-doc cleanup delegate. Intermediate-height splits are
// deliberately not a recognized type here: this core leaves them to the
// store's own compaction, since the reference store has no background
// compactor and nothing else in this module has a use for reclaiming them.
type SplitDocType int

const (
	// SplitDocDefaultLeaf is a first-level (height 0) previous document.
	SplitDocDefaultLeaf SplitDocType = iota
	// SplitDocCommitRootOnly is a previous document that exists solely to
	// record a commit root, with no revision history of its own.
	SplitDocCommitRootOnly
)

func (t SplitDocType) String() string {
	switch t {
	case SplitDocDefaultLeaf:
		return "default_leaf"
	case SplitDocCommitRootOnly:
		return "commit_root_only"
	default:
		return "unknown"
	}
}

// SplitDocDelegate reclaims split documents of the given types whose owning
// main document's modification time is older than oldestRevSeconds, updating
// stats.SplitDocGCCount and stats.IntermediateSplitDocGCCount as it goes. The
// call must block until done and should check for cancellation between
// per-type passes on a best-effort basis; the core does not itself interrupt
// it mid-type.
type SplitDocDelegate interface {
	DeleteSplitDocuments(ctx context.Context, types []SplitDocType, oldestRevSeconds int64, stats *VersionGCStats) error
}
