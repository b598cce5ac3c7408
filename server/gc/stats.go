package gc

import "time"

// VersionGCStats summarizes one GC run. The four deletion counters are kept
// strictly disjoint rather than folded together, so that a caller auditing
// where space was reclaimed does not need to guess which pass a document
// fell into; TotalReclaimed sums them for callers that just want one number.
type VersionGCStats struct {
	RunID string

	IgnoredGCDueToCheckPoint bool
	Canceled                 bool

	DeletedDocGCCount     int // DeletedLeafDocGCCount + non-leaf main-doc deletions
	DeletedLeafDocGCCount int
	DeletedPrevDocGCCount int

	SplitDocGCCount             int
	IntermediateSplitDocGCCount int

	RecreatedCount int

	Timers  [numPhases]time.Duration
	Elapsed time.Duration
}

// TotalReclaimed sums every deletion counter. It exists for callers that
// want the conflated total the original implementation reported before its
// previous-doc and split-doc counters were split apart.
func (s VersionGCStats) TotalReclaimed() int {
	return s.DeletedDocGCCount + s.DeletedPrevDocGCCount +
		s.SplitDocGCCount + s.IntermediateSplitDocGCCount
}
