package extsort

import (
	"errors"
	"fmt"
)

var errInvalidHeapPop = errors.New("extsort: heap.Pop returned an unexpected type")

// SortIOError wraps a spill or read failure encountered by a StringSort. It
// is fatal for the run it occurs in.
type SortIOError struct {
	Op  string
	Err error
}

func (e *SortIOError) Error() string {
	return fmt.Sprintf("extsort: i/o error during %s: %v", e.Op, e.Err)
}

func (e *SortIOError) Unwrap() error {
	return e.Err
}

func (e *SortIOError) Is(target error) bool {
	_, ok := target.(*SortIOError)
	return ok
}
