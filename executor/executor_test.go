package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvra/can-bootloader-go/canframe"
	"github.com/cvra/can-bootloader-go/datagram"
)

// fakeBus is a transport.Transport double that records each SendFrame burst
// and replays a scripted sequence of receive results.
type fakeBus struct {
	bursts  [][]canframe.Frame
	current []canframe.Frame
	recv    []*canframe.Frame
}

func (b *fakeBus) SendFrame(f canframe.Frame) error {
	b.current = append(b.current, f)
	return nil
}

func (b *fakeBus) ReceiveFrame() (*canframe.Frame, error) {
	if len(b.current) > 0 {
		b.bursts = append(b.bursts, b.current)
		b.current = nil
	}
	if len(b.recv) == 0 {
		return nil, nil
	}
	next := b.recv[0]
	b.recv = b.recv[1:]
	return next, nil
}

func (b *fakeBus) Close() error { return nil }

func answerFrames(data []byte, source uint8) []canframe.Frame {
	enc, _ := datagram.Encode(data, []uint8{0})
	return datagram.FramesFromDatagram(enc, source)
}

func newExecutorForTest(bus *fakeBus) *Executor {
	e := New(bus, 0)
	e.SettleDelay = 0
	return e
}

func TestWriteRetryExhaustsAfterExactlyKPlusOneSends(t *testing.T) {
	bus := &fakeBus{}
	e := newExecutorForTest(bus)
	e.RetryLimit = 3

	// Transport always times out: every ReceiveFrame call after a send
	// returns nil until recv is drained, which it never is.
	bus.recv = nil

	_, err := e.WriteRetry([]byte("cmd"), []uint8{1, 2})
	require.ErrorIs(t, err, ErrIO)

	// Force the final burst to be flushed into bursts for counting.
	bus.ReceiveFrame()
	assert.Len(t, bus.bursts, e.RetryLimit+1)
}

func TestWriteRetryAddressesOnlyLaggardOnSecondAttempt(t *testing.T) {
	bus := &fakeBus{}
	e := newExecutorForTest(bus)

	board1 := answerFrames([]byte("ok1"), 1)
	timeoutTick := []*canframe.Frame{nil}
	board2 := answerFrames([]byte("ok2"), 2)

	for i := range board1 {
		bus.recv = append(bus.recv, &board1[i])
	}
	bus.recv = append(bus.recv, timeoutTick...)
	for i := range board2 {
		bus.recv = append(bus.recv, &board2[i])
	}

	answers, err := e.WriteRetry([]byte("cmd"), []uint8{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok1"), answers[1])
	assert.Equal(t, []byte("ok2"), answers[2])

	bus.ReceiveFrame()
	require.Len(t, bus.bursts, 2)

	firstDatagram := destinationsFromBurst(t, bus.bursts[0])
	assert.Equal(t, []uint8{1, 2}, firstDatagram)

	secondDatagram := destinationsFromBurst(t, bus.bursts[1])
	assert.Equal(t, []uint8{2}, secondDatagram)
}

func destinationsFromBurst(t *testing.T, burst []canframe.Frame) []uint8 {
	t.Helper()
	var raw []byte
	for _, f := range burst {
		raw = append(raw, f.Data...)
	}
	decoded, err := datagram.Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	return decoded.Destinations
}

func TestWriteShipsWholeDatagram(t *testing.T) {
	bus := &fakeBus{}
	e := New(bus, 0)
	e.SettleDelay = time.Millisecond
	err := e.Write([]byte("x"), []uint8{1})
	require.NoError(t, err)

	// A 1-byte command datagram is 12 bytes on the wire: two frames.
	require.Len(t, bus.current, 2)
	assert.Equal(t, []uint8{1}, destinationsFromBurst(t, bus.current))
}
