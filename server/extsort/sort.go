package extsort

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/tidecore/revgc/server/util"
)

// Comparator orders two ids, returning <0, 0, or >0 the way sort.Interface
// comparisons traditionally do. NodeDocumentIdComparator is the comparator
// the GC injects in production; tests may inject anything total.
type Comparator func(a, b string) int

// Iterator is a lazy, forward-only, closeable sequence of ids.
type Iterator interface {
	Next() (id string, ok bool, err error)
	Close() error
}

// StringSort is an external-memory sorted set of strings: an append buffer
// that spills to one or more sorted temp run files once it exceeds the
// configured threshold, merged lazily on Ids().
type StringSort struct {
	mtx sync.Mutex
	cmp Comparator
	cfg config

	buffer    []string
	runs      []string
	size      int
	finalized bool
	closed    bool
}

// NewStringSort returns a StringSort ordered by cmp.
func NewStringSort(cmp Comparator, opts ...Option) *StringSort {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &StringSort{cmp: cmp, cfg: cfg}
}

// Add appends id, spilling the in-memory buffer to a sorted temp run if it
// has grown past the configured overflow threshold.
func (s *StringSort) Add(ctx context.Context, id string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.finalized {
		return fmt.Errorf("extsort: Add called after Sort")
	}
	s.buffer = append(s.buffer, id)
	s.size++
	if len(s.buffer) > s.cfg.overflowToDiskThreshold {
		return s.spillLocked(ctx)
	}
	return nil
}

// Size reports the total number of ids ever appended via Add.
func (s *StringSort) Size() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.size
}

// Sort finalizes the structure. Idempotent: calling it more than once, or
// letting Ids call it implicitly, has no further effect.
func (s *StringSort) Sort(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.sortLocked(ctx)
}

func (s *StringSort) sortLocked(ctx context.Context) error {
	if s.finalized {
		return nil
	}
	s.finalized = true
	if len(s.runs) == 0 {
		slices.SortFunc(s.buffer, s.cmp)
		return nil
	}
	return s.spillLocked(ctx)
}

func (s *StringSort) spillLocked(ctx context.Context) error {
	if len(s.buffer) == 0 {
		return nil
	}
	slices.SortFunc(s.buffer, s.cmp)
	if s.cfg.scratchDir != "" {
		if err := util.EnsureDirectoryExists(s.cfg.scratchDir); err != nil {
			return &SortIOError{Op: "create scratch dir", Err: err}
		}
	}
	path, err := writeRun(s.cfg.scratchDir, s.buffer)
	if err != nil {
		return err
	}
	s.runs = append(s.runs, path)
	s.buffer = s.buffer[:0]
	return nil
}

func writeRun(dir string, ids []string) (string, error) {
	f, err := os.CreateTemp(dir, "extsort-run-*.txt")
	if err != nil {
		return "", &SortIOError{Op: "create spill run", Err: err}
	}
	w := bufio.NewWriter(f)
	for _, id := range ids {
		if _, err := fmt.Fprintln(w, id); err != nil {
			_ = f.Close()
			return "", &SortIOError{Op: "write spill run", Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return "", &SortIOError{Op: "flush spill run", Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &SortIOError{Op: "close spill run", Err: err}
	}
	return f.Name(), nil
}

// Ids returns a lazy, single-pass ascending sequence over every id appended
// so far. Sort is called implicitly if it has not been already.
func (s *StringSort) Ids(ctx context.Context) (Iterator, error) {
	s.mtx.Lock()
	if err := s.sortLocked(ctx); err != nil {
		s.mtx.Unlock()
		return nil, err
	}
	fanout := max(s.cfg.mergeFanoutLimit, minMergeFanoutLimit)
	for len(s.runs) > fanout {
		if err := s.mergePassLocked(ctx); err != nil {
			s.mtx.Unlock()
			return nil, err
		}
	}
	runs := append([]string(nil), s.runs...)
	buf := append([]string(nil), s.buffer...)
	s.mtx.Unlock()

	if len(runs) == 0 {
		return &sliceIterator{items: buf}, nil
	}
	sem := semaphore.NewWeighted(int64(fanout))
	return newMergeIterator(ctx, runs, s.cmp, sem)
}

// mergePassLocked merges each consecutive group of up to mergeFanoutLimit
// runs into one new temp file, dividing the run count by roughly the fanout.
// Ids repeats it until at most mergeFanoutLimit runs remain, so the eventual
// top-level merge never has to hold more than mergeFanoutLimit files open at
// once. Called with s.mtx held.
func (s *StringSort) mergePassLocked(ctx context.Context) error {
	fanout := max(s.cfg.mergeFanoutLimit, minMergeFanoutLimit)
	sem := semaphore.NewWeighted(int64(fanout))
	newRuns := make([]string, 0, (len(s.runs)+fanout-1)/fanout)
	for i := 0; i < len(s.runs); i += fanout {
		group := s.runs[i:min(i+fanout, len(s.runs))]
		if len(group) == 1 {
			newRuns = append(newRuns, group[0])
			continue
		}
		merged, err := s.mergeGroupToFile(ctx, group, sem)
		if err != nil {
			return err
		}
		for _, path := range group {
			removePath := path
			util.MaybeWarn(ctx, func() error { return os.Remove(removePath) })
		}
		newRuns = append(newRuns, merged)
	}
	s.runs = newRuns
	return nil
}

func (s *StringSort) mergeGroupToFile(ctx context.Context, group []string, sem *semaphore.Weighted) (string, error) {
	mi, err := newMergeIterator(ctx, group, s.cmp, sem)
	if err != nil {
		return "", err
	}
	defer util.MaybeWarn(ctx, mi.Close)

	f, err := os.CreateTemp(s.cfg.scratchDir, "extsort-merge-*.txt")
	if err != nil {
		return "", &SortIOError{Op: "create intermediate merge run", Err: err}
	}
	w := bufio.NewWriter(f)
	for {
		id, ok, err := mi.Next()
		if err != nil {
			_ = f.Close()
			return "", err
		}
		if !ok {
			break
		}
		if _, err := fmt.Fprintln(w, id); err != nil {
			_ = f.Close()
			return "", &SortIOError{Op: "write intermediate merge run", Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return "", &SortIOError{Op: "flush intermediate merge run", Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &SortIOError{Op: "close intermediate merge run", Err: err}
	}
	return f.Name(), nil
}

// Close removes every spill file the sort created. Close-time errors are
// logged rather than returned, matching util.MaybeWarn's treatment of
// non-critical deferred closes elsewhere in this module.
func (s *StringSort) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	ctx := context.Background()
	for _, path := range s.runs {
		removePath := path
		util.MaybeWarn(ctx, func() error { return os.Remove(removePath) })
	}
	s.runs = nil
	s.buffer = nil
	return nil
}
