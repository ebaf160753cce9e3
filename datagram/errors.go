package datagram

import "errors"

var (
	// ErrVersionMismatch is raised when a decoded datagram's version byte
	// does not match Version. The peer is incompatible; this is fatal.
	ErrVersionMismatch = errors.New("datagram: version mismatch")
	// ErrCRCMismatch is raised when the trailing CRC does not match the
	// decoded tail.
	ErrCRCMismatch = errors.New("datagram: CRC mismatch")
	// ErrTooManyDestinations is returned by Encode when the destination
	// list is longer than MaxDestinations.
	ErrTooManyDestinations = errors.New("datagram: too many destinations")
)
