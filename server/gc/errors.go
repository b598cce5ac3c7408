package gc

import "errors"

// ErrAlreadyRunning is returned by GC when another run is already active.
// No state changes as a result of this call.
var ErrAlreadyRunning = errors.New("gc: a collection run is already in progress")
