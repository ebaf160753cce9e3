package canframe

import "errors"

// ErrFrameSizeInvalid is returned by NewFrame when the payload exceeds the
// 8 bytes a classic CAN frame can carry.
var ErrFrameSizeInvalid = errors.New("canframe: data length exceeds 8 bytes")
