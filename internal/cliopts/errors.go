package cliopts

import "errors"

// ErrNoConnectionSpecified is returned when neither -p nor -i was given.
var ErrNoConnectionSpecified = errors.New("cliopts: one of -p or -i is required")

// ErrConflictingConnection is returned when both -p and -i were given.
var ErrConflictingConnection = errors.New("cliopts: -p and -i are mutually exclusive")
