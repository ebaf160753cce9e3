package slipframe

import "errors"

var (
	// ErrFrameTooShort is returned when a decoded buffer is too small to
	// hold even the CRC trailer.
	ErrFrameTooShort = errors.New("slipframe: frame shorter than CRC trailer")
	// ErrCRCMismatch is returned when the trailing CRC does not match the
	// unescaped payload.
	ErrCRCMismatch = errors.New("slipframe: CRC mismatch")
)
