package checkpoint

import (
	"context"
	"strconv"
	"time"
)

// Revision identifies a pinned point in history that a client (a long-lived
// read session, an export job, a replication follower) has promised not to
// read behind. The GC must not delete anything older than the oldest
// registered Revision.
type Revision struct {
	millis int64
}

// NewRevision constructs a Revision from a millisecond timestamp.
func NewRevision(millis int64) Revision {
	return Revision{millis: millis}
}

// TimestampMillis returns the revision's timestamp in milliseconds since
// the epoch.
func (r Revision) TimestampMillis() int64 {
	return r.millis
}

// ReadableString renders the revision for log lines, matching the reference
// repository's preference for human-readable timestamps over raw millis in
// operator-facing warnings.
func (r Revision) ReadableString() string {
	return time.UnixMilli(r.millis).UTC().Format(time.RFC3339) + " (" + strconv.FormatInt(r.millis, 10) + "ms)"
}

// Registry tracks the oldest revision any registered client has pinned.
// OldestRevisionToKeep returns nil if no client currently has a revision
// registered (nothing blocks collection).
type Registry interface {
	OldestRevisionToKeep(ctx context.Context) (*Revision, error)
}
