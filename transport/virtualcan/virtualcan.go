// Package virtualcan implements an in-process CAN bus used for tests and
// examples: a channel-based broker fans frames out to every connected
// participant, so test suites don't need an external process or device.
package virtualcan

import (
	"sync"
	"time"

	"github.com/cvra/can-bootloader-go/canframe"
	"github.com/cvra/can-bootloader-go/transport"
)

func init() {
	transport.Register("virtual", New)
}

// broker fans every frame sent by one connected Bus out to all the others.
type broker struct {
	mu    sync.Mutex
	buses map[*Bus]struct{}
}

var brokers = struct {
	mu sync.Mutex
	m  map[string]*broker
}{m: make(map[string]*broker)}

func brokerFor(channel string) *broker {
	brokers.mu.Lock()
	defer brokers.mu.Unlock()
	b, ok := brokers.m[channel]
	if !ok {
		b = &broker{buses: make(map[*Bus]struct{})}
		brokers.m[channel] = b
	}
	return b
}

func (b *broker) join(bus *Bus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buses[bus] = struct{}{}
}

func (b *broker) leave(bus *Bus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buses, bus)
}

func (b *broker) publish(from *Bus, f canframe.Frame, receiveOwn bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for bus := range b.buses {
		if bus == from && !receiveOwn {
			continue
		}
		select {
		case bus.frames <- f:
		default:
		}
	}
}

// Bus is a channel-backed participant on a named virtual bus.
type Bus struct {
	channel    string
	broker     *broker
	frames     chan canframe.Frame
	timeout    time.Duration
	receiveOwn bool
}

// New joins (creating if needed) the named virtual bus.
func New(channel string, timeout time.Duration) (transport.Transport, error) {
	b := brokerFor(channel)
	bus := &Bus{
		channel: channel,
		broker:  b,
		frames:  make(chan canframe.Frame, 256),
		timeout: timeout,
	}
	b.join(bus)
	return bus, nil
}

// SetReceiveOwn controls whether frames this bus sends are also delivered
// back to it, useful for single-process loopback tests.
func (b *Bus) SetReceiveOwn(on bool) {
	b.receiveOwn = on
}

// SendFrame implements transport.Transport.
func (b *Bus) SendFrame(f canframe.Frame) error {
	b.broker.publish(b, f, b.receiveOwn)
	return nil
}

// ReceiveFrame implements transport.Transport.
func (b *Bus) ReceiveFrame() (*canframe.Frame, error) {
	select {
	case f := <-b.frames:
		return &f, nil
	case <-time.After(b.timeout):
		return nil, nil
	}
}

// Close removes this bus from its broker.
func (b *Bus) Close() error {
	b.broker.leave(b)
	return nil
}
