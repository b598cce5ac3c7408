package sqlitestore

import (
	"context"
	"fmt"

	"github.com/tidecore/revgc/server/gc"
)

// DeleteSplitDocuments implements gc.SplitDocDelegate against the previous
// (split) documents recorded via PutPrevious: each carries the split type
// and the owning main document's modification time it was tagged with.
func (s *Store) DeleteSplitDocuments(ctx context.Context, types []gc.SplitDocType, oldestRevSeconds int64, stats *gc.VersionGCStats) error {
	for _, t := range types {
		res, err := s.db.ExecContext(ctx,
			`delete from nodes where split_type = $1 and owner_modified < $2`,
			int(t), oldestRevSeconds)
		if err != nil {
			return fmt.Errorf("sqlitestore: delete split documents of type %s failed: %w", t, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlitestore: delete split documents of type %s: rows affected: %w", t, err)
		}
		stats.SplitDocGCCount += int(n)
	}
	return nil
}
