// Package transport defines the CAN transport capability consumed by the
// datagram and executor layers, with a name-keyed registry the concrete
// adapters join at init time.
package transport

import (
	"fmt"
	"time"

	"github.com/cvra/can-bootloader-go/canframe"
)

// Transport is the minimal capability the core consumes from a CAN link:
// send one frame, best-effort with no ack, and receive one frame, blocking
// up to the adapter's configured timeout. A nil frame with a nil error
// signals a timeout tick, never an error and never end-of-stream.
type Transport interface {
	SendFrame(f canframe.Frame) error
	ReceiveFrame() (*canframe.Frame, error)
	Close() error
}

// NewFunc constructs a Transport for a given channel (interface name,
// device path, or address, depending on the adapter).
type NewFunc func(channel string, timeout time.Duration) (Transport, error)

var registry = make(map[string]NewFunc)

// Register makes a named adapter constructor available to New. Adapters call
// this from an init() function.
func Register(name string, fn NewFunc) {
	registry[name] = fn
}

// New looks up a registered adapter by name and constructs it.
func New(name, channel string, timeout time.Duration) (Transport, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("transport: unsupported adapter %q", name)
	}
	return fn(channel, timeout)
}
