package extsort

import (
	"bufio"
	"container/heap"
	"context"
	"os"

	"golang.org/x/sync/semaphore"

	"github.com/tidecore/revgc/server/util"
)

type sliceIterator struct {
	items []string
	idx   int
}

func (it *sliceIterator) Next() (string, bool, error) {
	if it.idx >= len(it.items) {
		return "", false, nil
	}
	v := it.items[it.idx]
	it.idx++
	return v, true, nil
}

func (it *sliceIterator) Close() error {
	return nil
}

// runReader streams one sorted run file. Opening one acquires a slot on the
// supplied semaphore; closing releases it, so a merge across many runs
// never holds more file descriptors open than the configured fanout limit.
type runReader struct {
	f       *os.File
	scanner *bufio.Scanner
	sem     *semaphore.Weighted
}

func openRunReader(ctx context.Context, path string, sem *semaphore.Weighted) (*runReader, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, &SortIOError{Op: "acquire merge fanout slot", Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		sem.Release(1)
		return nil, &SortIOError{Op: "open run", Err: err}
	}
	return &runReader{f: f, scanner: bufio.NewScanner(f), sem: sem}, nil
}

func (r *runReader) advance() (string, bool, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), true, nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", false, &SortIOError{Op: "read run", Err: err}
	}
	return "", false, nil
}

func (r *runReader) Close() error {
	if r.f == nil {
		return nil
	}
	f := r.f
	r.f = nil
	r.sem.Release(1)
	return f.Close()
}

// mergeHead pairs a run's current head value with the reader it came from,
// so popping the heap's minimum both yields the next output value and tells
// the merge which run to advance.
type mergeHead = util.Pair[string, *runReader]

// mergeIterator performs a k-way merge of sorted run files via a min-heap
// keyed by the injected comparator, the same pattern the reference
// repository uses to merge sorted message iterators: push one head element
// per run, repeatedly pop the smallest, advance that run, push its next
// head.
type mergeIterator struct {
	pq *util.PriorityQueue[mergeHead]
}

func newMergeIterator(ctx context.Context, paths []string, cmp Comparator, sem *semaphore.Weighted) (*mergeIterator, error) {
	pq := util.NewPriorityQueue[mergeHead](func(a, b mergeHead) bool { return cmp(a.First, b.First) < 0 })
	heap.Init(pq)
	mi := &mergeIterator{pq: pq}
	for _, path := range paths {
		reader, err := openRunReader(ctx, path, sem)
		if err != nil {
			_ = mi.Close()
			return nil, err
		}
		v, ok, err := reader.advance()
		if err != nil {
			_ = reader.Close()
			_ = mi.Close()
			return nil, err
		}
		if !ok {
			_ = reader.Close()
			continue
		}
		heap.Push(pq, util.NewPair(v, reader))
	}
	return mi, nil
}

func (mi *mergeIterator) Next() (string, bool, error) {
	if mi.pq.Len() == 0 {
		return "", false, nil
	}
	top, ok := heap.Pop(mi.pq).(mergeHead)
	if !ok {
		return "", false, &SortIOError{Op: "merge", Err: errInvalidHeapPop}
	}
	next, hasNext, err := top.Second.advance()
	if err != nil {
		_ = top.Second.Close()
		return "", false, err
	}
	if hasNext {
		heap.Push(mi.pq, util.NewPair(next, top.Second))
	} else if err := top.Second.Close(); err != nil {
		return "", false, err
	}
	return top.First, true, nil
}

func (mi *mergeIterator) Close() error {
	var first error
	for mi.pq.Len() > 0 {
		item, ok := heap.Pop(mi.pq).(mergeHead)
		if !ok {
			continue
		}
		if err := item.Second.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
