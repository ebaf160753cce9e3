package ops

import "errors"

// ErrConfigRefusesNodeID is returned by WriteConfig when the supplied map
// contains the ID key, which must only ever change through ChangeID.
var ErrConfigRefusesNodeID = errors.New("ops: write-config refuses to change ID")
