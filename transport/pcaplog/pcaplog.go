// Package pcaplog wraps a transport.Transport to additionally record every
// sent and received frame to a Wireshark-compatible pcap file using
// LINKTYPE_CAN_SOCKETCAN. It composes another adapter rather than
// replacing it, so any transport can be traced.
package pcaplog

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/cvra/can-bootloader-go/canframe"
	"github.com/cvra/can-bootloader-go/transport"
)

const linktypeCANSocketCAN = 227

// pcap global header, version 2.4, microsecond timestamps.
var globalHeader = []byte{
	0xD4, 0xC3, 0xB2, 0xA1, // magic (little-endian)
	0x02, 0x00, 0x04, 0x00, // version 2.4
	0x00, 0x00, 0x00, 0x00, // thiszone
	0x00, 0x00, 0x00, 0x00, // sigfigs
	0xFF, 0xFF, 0x00, 0x00, // snaplen (65535)
	0x00, 0x00, 0x00, 0x00, // linktype, filled below
}

func init() {
	binary.LittleEndian.PutUint32(globalHeader[20:], linktypeCANSocketCAN)
}

// Wrapper delegates SendFrame/ReceiveFrame to an inner transport, logging a
// pcap record for every frame that passes through.
type Wrapper struct {
	inner transport.Transport
	out   io.Writer
	now   func() time.Time
}

// New wraps inner, writing the pcap global header to out immediately.
func New(inner transport.Transport, out io.Writer) (*Wrapper, error) {
	if _, err := out.Write(globalHeader); err != nil {
		return nil, err
	}
	return &Wrapper{inner: inner, out: out, now: time.Now}, nil
}

// socketcanFrameRecord is the LINKTYPE_CAN_SOCKETCAN pseudo-header followed
// by the payload: 4-byte id in network byte order (EFF/RTR flags in the high
// bits), 1-byte length, 3 bytes padding, then the data bytes unpadded.
func socketcanFrameRecord(f canframe.Frame) []byte {
	id := f.ID
	if f.Extended {
		id |= 0x80000000
	}
	if f.RTR {
		id |= 0x40000000
	}
	rec := make([]byte, 8+len(f.Data))
	binary.BigEndian.PutUint32(rec[0:4], id)
	rec[4] = byte(len(f.Data))
	copy(rec[8:], f.Data)
	return rec
}

func (w *Wrapper) writeRecord(f canframe.Frame) error {
	payload := socketcanFrameRecord(f)
	now := w.now()
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], uint32(now.Unix()))
	binary.LittleEndian.PutUint32(header[4:8], uint32(now.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))
	if _, err := w.out.Write(header); err != nil {
		return err
	}
	_, err := w.out.Write(payload)
	return err
}

// SendFrame implements transport.Transport.
func (w *Wrapper) SendFrame(f canframe.Frame) error {
	if err := w.writeRecord(f); err != nil {
		return err
	}
	return w.inner.SendFrame(f)
}

// ReceiveFrame implements transport.Transport.
func (w *Wrapper) ReceiveFrame() (*canframe.Frame, error) {
	f, err := w.inner.ReceiveFrame()
	if err != nil || f == nil {
		return f, err
	}
	if werr := w.writeRecord(*f); werr != nil {
		return f, werr
	}
	return f, nil
}

// Close closes the inner transport; the pcap file is owned by the caller.
func (w *Wrapper) Close() error {
	return w.inner.Close()
}
