// Package datagram implements the CAN datagram protocol: a versioned,
// length-delimited, CRC-32-protected message fragmented across CAN frames,
// with per-source reassembly so interleaved datagrams from distinct nodes
// never corrupt each other.
package datagram

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cvra/can-bootloader-go/canframe"
)

// Version is the only datagram wire version this driver speaks.
const Version uint8 = 1

// MaxDestinations bounds the destination list length to what a single byte
// can declare.
const MaxDestinations = 127

// Decoded is a fully reassembled datagram: its payload and the destination
// list it was addressed to.
type Decoded struct {
	Data         []byte
	Destinations []uint8
}

// Encode produces the wire layout of a datagram:
// version(1) || crc32_be(tail)(4) || n(1) || dst[n] || len_be(4) || data[len]
// where the CRC covers everything after itself (n, dst, len, data).
func Encode(data []byte, destinations []uint8) ([]byte, error) {
	if len(destinations) > MaxDestinations {
		return nil, ErrTooManyDestinations
	}

	tail := make([]byte, 0, 1+len(destinations)+4+len(data))
	tail = append(tail, byte(len(destinations)))
	tail = append(tail, destinations...)
	lenField := make([]byte, 4)
	binary.BigEndian.PutUint32(lenField, uint32(len(data)))
	tail = append(tail, lenField...)
	tail = append(tail, data...)

	crc := crc32.ChecksumIEEE(tail)

	out := make([]byte, 0, 1+4+len(tail))
	out = append(out, Version)
	crcField := make([]byte, 4)
	binary.BigEndian.PutUint32(crcField, crc)
	out = append(out, crcField...)
	out = append(out, tail...)
	return out, nil
}

// Decode attempts to parse a complete datagram out of buf. It returns
// (nil, nil) when buf holds fewer bytes than the declared layout requires
// (wait for more frames), and an error for version or CRC violations. The
// declared data length is authoritative: decoding stays incomplete until
// the accumulated data section is exactly that long.
func Decode(buf []byte) (*Decoded, error) {
	if len(buf) < 1 {
		return nil, nil
	}
	version := buf[0]
	if version != Version {
		return nil, ErrVersionMismatch
	}
	rest := buf[1:]
	if len(rest) < 4 {
		return nil, nil
	}
	crc := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]

	if len(rest) < 1 {
		return nil, nil
	}
	n := int(rest[0])
	rest = rest[1:]
	if len(rest) < n {
		return nil, nil
	}
	destinations := append([]uint8(nil), rest[:n]...)
	rest = rest[n:]

	if len(rest) < 4 {
		return nil, nil
	}
	length := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]

	if uint32(len(rest)) != length {
		return nil, nil
	}
	data := rest

	tail := make([]byte, 0, 1+n+4+len(data))
	tail = append(tail, byte(n))
	tail = append(tail, destinations...)
	lenField := make([]byte, 4)
	binary.BigEndian.PutUint32(lenField, length)
	tail = append(tail, lenField...)
	tail = append(tail, data...)

	if crc32.ChecksumIEEE(tail) != crc {
		return nil, ErrCRCMismatch
	}

	return &Decoded{Data: append([]byte(nil), data...), Destinations: destinations}, nil
}

// FramesFromDatagram splits an encoded datagram into CAN frames of at most
// 8 bytes each, stamping source into the low 7 bits of every frame's id and
// setting the start-of-datagram bit only on the first.
func FramesFromDatagram(dgram []byte, source uint8) []canframe.Frame {
	var frames []canframe.Frame
	start := true
	for len(dgram) > 0 {
		n := len(dgram)
		if n > canframe.MaxDataLength {
			n = canframe.MaxDataLength
		}
		chunk, rest := dgram[:n], dgram[n:]
		frames = append(frames, canframe.Frame{
			ID:   canframe.FrameID(start, source),
			Data: chunk,
		})
		dgram = rest
		start = false
	}
	if len(frames) == 0 {
		// An empty datagram still produces one (empty) frame.
		frames = append(frames, canframe.Frame{ID: canframe.FrameID(true, source)})
	}
	return frames
}
