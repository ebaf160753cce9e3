// Package canframe defines the pure CAN frame value type shared by every
// layer of the bootloader stack.
package canframe

// MaxDataLength is the largest payload a single CAN frame can carry.
const MaxDataLength = 8

// StartOfDatagramMask is bit 7 of an 11-bit standard id, set on the first
// frame of a datagram's frame stream.
const StartOfDatagramMask uint32 = 1 << 7

// SourceIDMask extracts the 7-bit emitting node id from a frame's id.
const SourceIDMask uint32 = 0x7F

// Frame is a single CAN frame: up to 8 payload bytes tagged with an id.
// Only non-extended frames participate in the bootloader protocol; extended
// frames are modeled so the reassembler can recognize and drop them.
type Frame struct {
	ID       uint32
	Data     []byte
	Extended bool
	RTR      bool
}

// NewFrame builds a Frame, rejecting payloads longer than 8 bytes.
func NewFrame(id uint32, data []byte, extended, rtr bool) (Frame, error) {
	if len(data) > MaxDataLength {
		return Frame{}, ErrFrameSizeInvalid
	}
	return Frame{ID: id, Data: data, Extended: extended, RTR: rtr}, nil
}

// Equal reports whether two frames carry the same id and data, per the
// identity the protocol cares about.
func (f Frame) Equal(other Frame) bool {
	if f.ID != other.ID || len(f.Data) != len(other.Data) {
		return false
	}
	for i := range f.Data {
		if f.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// Source returns the 7-bit source node id carried in the low bits of ID.
func (f Frame) Source() uint8 {
	return uint8(f.ID & SourceIDMask)
}

// IsStartOfDatagram reports whether bit 7 of ID, the start-of-datagram
// marker, is set.
func (f Frame) IsStartOfDatagram() bool {
	return f.ID&StartOfDatagramMask != 0
}

// FrameID builds the 11-bit frame id for a datagram fragment: the
// start-of-datagram bit OR'd with the 7-bit source id.
func FrameID(start bool, source uint8) uint32 {
	id := uint32(source) & SourceIDMask
	if start {
		id |= StartOfDatagramMask
	}
	return id
}
