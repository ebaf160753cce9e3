// Package serialbridge adapts a CAN-over-UART bridge to transport.Transport.
// The bridge firmware speaks two layers: slipframe framing on the wire, and
// inside each frame msgpack objects. Outgoing frames carry a bridge command
// code (SendFrame=0, SetIDFilter=1) followed by the CAN frame fields;
// incoming frames carry the CAN frame fields alone.
package serialbridge

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cvra/can-bootloader-go/canframe"
	"github.com/cvra/can-bootloader-go/slipframe"
	"github.com/cvra/can-bootloader-go/transport"
	"github.com/vmihailenco/msgpack/v5"
	"go.bug.st/serial"
)

func init() {
	transport.Register("serialbridge", New)
}

// Bridge command codes, per the UART bridge protocol.
const (
	CmdSendFrame   uint8 = 0
	CmdSetIDFilter uint8 = 1
)

// Bus wraps a serial port speaking the bridge protocol.
type Bus struct {
	port   serial.Port
	reader *slipframe.Reader
}

// New opens the named serial device (e.g. "/dev/ttyUSB0") at a fixed baud
// rate with a short read timeout so the stream reader can surface timeout
// ticks, and wraps it in the bridge protocol.
func New(device string, timeout time.Duration) (transport.Transport, error) {
	mode := &serial.Mode{BaudRate: 921600}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("serialbridge: open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("serialbridge: set timeout: %w", err)
	}
	return &Bus{port: port, reader: slipframe.NewReader(port)}, nil
}

// encodeFrame packs extended, rtr, id, data as four successive msgpack
// objects, matching the bridge's wire format.
func encodeFrame(f canframe.Frame) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := msgpack.NewEncoder(buf)
	for _, v := range []any{f.Extended, f.RTR, f.ID, f.Data} {
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeFrame(data []byte) (canframe.Frame, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	var extended, rtr bool
	var id uint32
	var payload []byte
	if err := dec.Decode(&extended); err != nil {
		return canframe.Frame{}, err
	}
	if err := dec.Decode(&rtr); err != nil {
		return canframe.Frame{}, err
	}
	if err := dec.Decode(&id); err != nil {
		return canframe.Frame{}, err
	}
	if err := dec.Decode(&payload); err != nil {
		return canframe.Frame{}, err
	}
	return canframe.Frame{ID: id, Data: payload, Extended: extended, RTR: rtr}, nil
}

// SendFrame implements transport.Transport.
func (b *Bus) SendFrame(f canframe.Frame) error {
	frameBytes, err := encodeFrame(f)
	if err != nil {
		return fmt.Errorf("serialbridge: encode frame: %w", err)
	}
	command, err := msgpack.Marshal(CmdSendFrame)
	if err != nil {
		return err
	}
	command = append(command, frameBytes...)
	_, err = b.port.Write(slipframe.Encode(command))
	return err
}

// ReceiveFrame implements transport.Transport: reads one SLIP frame and
// decodes the CAN frame fields it carries. (nil, nil) on timeout.
func (b *Bus) ReceiveFrame() (*canframe.Frame, error) {
	raw, err := b.reader.ReadFrame()
	if err != nil || raw == nil {
		return nil, err
	}
	f, err := decodeFrame(raw)
	if err != nil {
		return nil, fmt.Errorf("serialbridge: decode frame: %w", err)
	}
	return &f, nil
}

// Close closes the underlying serial port.
func (b *Bus) Close() error {
	return b.port.Close()
}
