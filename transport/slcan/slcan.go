// Package slcan implements the slcan ASCII line protocol used by
// lawicel-compatible CAN-to-serial adapters: commands are '\r'-terminated
// ASCII lines, 'S8' selects 1 Mbit, 'O' opens the channel, and frames are
// sent/received as 't'/'T' lines (standard/extended).
package slcan

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cvra/can-bootloader-go/canframe"
	"github.com/cvra/can-bootloader-go/transport"
	"go.bug.st/serial"
)

func init() {
	transport.Register("slcan", New)
}

// Bus wraps a serial port speaking the slcan ASCII protocol.
type Bus struct {
	port serial.Port
	line []byte
	buf  [1]byte
}

// New opens the named serial device, selects 1 Mbit and opens the channel.
func New(device string, timeout time.Duration) (transport.Transport, error) {
	mode := &serial.Mode{BaudRate: 115200}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("slcan: open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		return nil, err
	}
	b := &Bus{port: port}
	for _, cmd := range []string{"S8\r", "O\r"} {
		if _, err := port.Write([]byte(cmd)); err != nil {
			return nil, fmt.Errorf("slcan: send %q: %w", cmd, err)
		}
	}
	return b, nil
}

// SendFrame implements transport.Transport, encoding a standard ('t') or
// extended ('T') frame line.
func (b *Bus) SendFrame(f canframe.Frame) error {
	var sb strings.Builder
	if f.Extended {
		sb.WriteByte('T')
		fmt.Fprintf(&sb, "%08X", f.ID)
	} else {
		sb.WriteByte('t')
		fmt.Fprintf(&sb, "%03X", f.ID)
	}
	fmt.Fprintf(&sb, "%d", len(f.Data))
	for _, byt := range f.Data {
		fmt.Fprintf(&sb, "%02X", byt)
	}
	sb.WriteByte('\r')
	_, err := b.port.Write([]byte(sb.String()))
	return err
}

// ReceiveFrame implements transport.Transport. Bytes are pulled off the
// port one at a time so a read timeout (the port returning zero bytes)
// surfaces as a (nil, nil) tick after a single poll interval; a partial
// line accumulated before the timeout is kept for the next call.
func (b *Bus) ReceiveFrame() (*canframe.Frame, error) {
	for {
		n, err := b.port.Read(b.buf[:])
		if n == 0 {
			if err == io.EOF {
				return nil, err
			}
			// Timeout: no byte arrived within the port's read timeout.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		c := b.buf[0]
		if c != '\r' {
			b.line = append(b.line, c)
			continue
		}
		line := string(b.line)
		b.line = b.line[:0]
		return parseLine(line)
	}
}

func parseLine(line string) (*canframe.Frame, error) {
	if len(line) == 0 {
		return nil, nil
	}
	extended := line[0] == 'T'
	if !extended && line[0] != 't' {
		return nil, nil // not a frame line (e.g. status reply)
	}
	idLen := 3
	if extended {
		idLen = 8
	}
	if len(line) < 1+idLen+1 {
		return nil, fmt.Errorf("slcan: short frame line %q", line)
	}
	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return nil, fmt.Errorf("slcan: parse id: %w", err)
	}
	dlc, err := strconv.Atoi(line[1+idLen : 2+idLen])
	if err != nil {
		return nil, fmt.Errorf("slcan: parse dlc: %w", err)
	}
	data := make([]byte, dlc)
	offset := 2 + idLen
	for i := 0; i < dlc; i++ {
		b, err := strconv.ParseUint(line[offset+2*i:offset+2*i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("slcan: parse data byte: %w", err)
		}
		data[i] = byte(b)
	}
	f := canframe.Frame{ID: uint32(id), Data: data, Extended: extended}
	return &f, nil
}

// Close sends the close-channel command and closes the serial port.
func (b *Bus) Close() error {
	_, _ = b.port.Write([]byte("C\r"))
	return b.port.Close()
}
