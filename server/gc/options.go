package gc

import (
	"fmt"
	"runtime"
	"time"

	"github.com/relvacode/iso8601"
)

/*
Options for Collector, following the same functional-options shape used
throughout this module's reference repository: a zero-value config seeded
with defaults, mutated in order by each Option.
*/

////////////////////////////////////////////////////////////////////////////////

type config struct {
	overflowToDiskThreshold int
	scratchDir              string
	mergeFanoutLimit        int
	oldestRevisionOverride  *time.Time

	// optErr records the first error raised by applying an Option. Options
	// cannot return errors directly, so New checks this after applying every
	// option and fails construction if it is non-nil.
	optErr error
}

func defaultConfig() config {
	return config{
		overflowToDiskThreshold: 100_000,
		mergeFanoutLimit:        max(runtime.GOMAXPROCS(0), minMergeFanoutLimit),
	}
}

// minMergeFanoutLimit is the smallest fanout the underlying extsort merge
// can make progress with; see extsort.minMergeFanoutLimit.
const minMergeFanoutLimit = 2

// Option configures a Collector.
type Option func(*config)

// WithOverflowToDiskThreshold sets the in-memory element count above which
// the non-leaf and previous-doc id sets spill to disk during a run.
func WithOverflowToDiskThreshold(n int) Option {
	return func(c *config) {
		c.overflowToDiskThreshold = n
	}
}

// WithMergeFanoutLimit sets the maximum number of spill-run files held open
// concurrently while merging the sorted id sets. Clamped to a floor of 2: a
// merge pass cannot reduce a run count with a fanout of 1.
func WithMergeFanoutLimit(n int) Option {
	return func(c *config) {
		c.mergeFanoutLimit = max(n, minMergeFanoutLimit)
	}
}

// WithScratchDir sets the directory spill files are created in for the
// duration of a run.
func WithScratchDir(dir string) Option {
	return func(c *config) {
		c.scratchDir = dir
	}
}

// WithOldestRevisionOverride pins the cutoff used by GC to the given
// ISO8601 timestamp instead of deriving it from the clock and the caller's
// maxAge. It exists for operators replaying or re-running a collection
// against a fixed point in history.
func WithOldestRevisionOverride(timestamp string) Option {
	return func(c *config) {
		t, err := iso8601.ParseString(timestamp)
		if err != nil {
			c.optErr = fmt.Errorf("gc: invalid oldest revision override %q: %w", timestamp, err)
			return
		}
		c.oldestRevisionOverride = &t
	}
}
