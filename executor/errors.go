package executor

import "errors"

// ErrIO is returned when a command exhausts its retry budget without a
// reply from every destination.
var ErrIO = errors.New("executor: retry limit exhausted")
