package flash

import "errors"

var (
	// ErrBoardsOffline is returned by the online check when not every
	// requested destination answered Ping.
	ErrBoardsOffline = errors.New("flash: one or more boards offline")
	// ErrEraseFailed is returned when any destination nacks a page erase.
	ErrEraseFailed = errors.New("flash: page erase failed")
	// ErrWriteFailed is returned when any destination nacks a chunk write.
	ErrWriteFailed = errors.New("flash: chunk write failed")
	// ErrVerificationFailed is returned when one or more destinations'
	// post-flash CRC does not match the expected value.
	ErrVerificationFailed = errors.New("flash: verification failed")
)
