package datagram

import (
	"github.com/cvra/can-bootloader-go/canframe"
	"github.com/cvra/can-bootloader-go/transport"
)

// maxAccumulatorSize bounds per-source buffer growth so a misbehaving peer
// can't exhaust memory. A well-behaved peer has at most one datagram in
// flight per source, so this should never be reached in practice.
const maxAccumulatorSize = 4 * 1024 * 1024

// Received pairs a reassembled datagram with the source that sent it.
type Received struct {
	Decoded
	Source uint8
}

// Reassembler holds one byte accumulator per observed source id and
// decodes complete datagrams out of an incoming frame stream. It has no
// global "current datagram" state: accumulators are keyed by source, so
// datagrams from distinct sources reassemble correctly even when their
// frames are fully interleaved.
type Reassembler struct {
	accumulators map[uint8][]byte
}

// NewReassembler returns an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{accumulators: make(map[uint8][]byte)}
}

// Feed appends one frame to its source's accumulator and attempts to
// decode a complete datagram out of it. It returns (nil, nil) when more
// frames are needed, silently drops extended frames (application traffic
// sharing the bus), and resets a source's accumulator whenever a new
// start-of-datagram frame arrives from it, discarding any partial
// datagram without error.
func (r *Reassembler) Feed(f canframe.Frame) (*Received, error) {
	if f.Extended {
		return nil, nil
	}

	src := f.Source()
	if f.IsStartOfDatagram() {
		r.accumulators[src] = nil
	}

	acc := append(r.accumulators[src], f.Data...)
	if len(acc) > maxAccumulatorSize {
		acc = acc[len(acc)-maxAccumulatorSize:]
	}
	r.accumulators[src] = acc

	decoded, err := Decode(acc)
	if err != nil {
		delete(r.accumulators, src)
		return nil, err
	}
	if decoded == nil {
		return nil, nil
	}
	delete(r.accumulators, src)
	return &Received{Decoded: *decoded, Source: src}, nil
}

// Tick is one step of the pull-style reassembly sequence: either a
// completed datagram, or a transport timeout signal with Timeout set and
// Received nil. A timeout tick never discards in-progress accumulators.
type Tick struct {
	Timeout  bool
	Received *Received
}

// Stream pulls frames from a transport and feeds them to a Reassembler,
// surfacing decoded datagrams and transport timeout ticks to the caller.
type Stream struct {
	t transport.Transport
	r *Reassembler
}

// NewStream builds a pull-style reassembly sequence over t, sharing r so
// multiple streams (or a caller switching strategies) can observe the same
// in-progress accumulators if needed; pass NewReassembler() for a fresh one.
func NewStream(t transport.Transport, r *Reassembler) *Stream {
	return &Stream{t: t, r: r}
}

// Next blocks until either a complete datagram is reassembled or the
// transport reports a timeout, whichever comes first. VersionMismatch and
// CRCMismatch propagate as errors; a timeout never does.
func (s *Stream) Next() (Tick, error) {
	for {
		frame, err := s.t.ReceiveFrame()
		if err != nil {
			return Tick{}, err
		}
		if frame == nil {
			return Tick{Timeout: true}, nil
		}
		received, err := s.r.Feed(*frame)
		if err != nil {
			return Tick{}, err
		}
		if received != nil {
			return Tick{Received: received}, nil
		}
		// Incomplete: keep pulling frames.
	}
}
