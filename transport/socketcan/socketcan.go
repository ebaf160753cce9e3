// Package socketcan adapts github.com/brutella/can's subscribe/callback
// SocketCAN binding to the blocking transport.Transport capability the core
// expects. brutella/can only offers push delivery (Subscribe + a Handle
// callback), so this wraps it with a bounded channel and a deadline timer,
// confining the one background goroutine the bootloader core relies on
// adapters, not itself, to own.
package socketcan

import (
	"time"

	sockcan "github.com/brutella/can"
	"github.com/cvra/can-bootloader-go/canframe"
	"github.com/cvra/can-bootloader-go/transport"
	"golang.org/x/sys/unix"
)

func init() {
	transport.Register("socketcan", New)
}

const rxBufferSize = 256

// Bus wraps a brutella/can Bus to present a blocking Transport.
type Bus struct {
	bus     *sockcan.Bus
	frames  chan canframe.Frame
	timeout time.Duration
}

// New opens the named SocketCAN interface (e.g. "can0") and connects.
func New(channel string, timeout time.Duration) (transport.Transport, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(channel)
	if err != nil {
		return nil, err
	}
	b := &Bus{
		bus:     bus,
		frames:  make(chan canframe.Frame, rxBufferSize),
		timeout: timeout,
	}
	bus.Subscribe(b)
	go bus.ConnectAndPublish()
	return b, nil
}

// Handle implements brutella/can's Handler interface, the push side of the
// bridge: decode the raw frame and enqueue it without blocking.
func (b *Bus) Handle(frame sockcan.Frame) {
	extended := frame.ID&uint32(unix.CAN_EFF_FLAG) != 0
	rtr := frame.ID&uint32(unix.CAN_RTR_FLAG) != 0
	mask := uint32(unix.CAN_SFF_MASK)
	if extended {
		mask = uint32(unix.CAN_EFF_MASK)
	}
	f := canframe.Frame{
		ID:       frame.ID & mask,
		Data:     append([]byte(nil), frame.Data[:frame.Length]...),
		Extended: extended,
		RTR:      rtr,
	}
	select {
	case b.frames <- f:
	default:
		// Drop on a full buffer rather than block the bus goroutine.
	}
}

// SendFrame implements transport.Transport.
func (b *Bus) SendFrame(f canframe.Frame) error {
	id := f.ID
	if f.Extended {
		id |= uint32(unix.CAN_EFF_FLAG)
	}
	if f.RTR {
		id |= uint32(unix.CAN_RTR_FLAG)
	}
	var data [8]byte
	copy(data[:], f.Data)
	return b.bus.Publish(sockcan.Frame{
		ID:     id,
		Length: uint8(len(f.Data)),
		Data:   data,
	})
}

// ReceiveFrame implements transport.Transport: blocks up to the configured
// timeout, returning (nil, nil) if none arrives in time.
func (b *Bus) ReceiveFrame() (*canframe.Frame, error) {
	select {
	case f := <-b.frames:
		return &f, nil
	case <-time.After(b.timeout):
		return nil, nil
	}
}

// Close disconnects the underlying bus.
func (b *Bus) Close() error {
	return b.bus.Disconnect()
}
