package transport

import "errors"

// ErrIO names a hard transport fault, as distinct from a timeout, which is
// reported as (nil, nil). The adapters in this module return their
// underlying errors as they are and do not wrap them in ErrIO.
var ErrIO = errors.New("transport: I/O error")
