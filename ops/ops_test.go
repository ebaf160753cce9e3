package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/cvra/can-bootloader-go/canframe"
	"github.com/cvra/can-bootloader-go/datagram"
	"github.com/cvra/can-bootloader-go/executor"
)

type fakeBus struct {
	recv []*canframe.Frame
}

func (b *fakeBus) SendFrame(canframe.Frame) error { return nil }

func (b *fakeBus) ReceiveFrame() (*canframe.Frame, error) {
	if len(b.recv) == 0 {
		return nil, nil
	}
	next := b.recv[0]
	b.recv = b.recv[1:]
	return next, nil
}

func (b *fakeBus) Close() error { return nil }

func answerFrames(t *testing.T, v any, source uint8) []*canframe.Frame {
	t.Helper()
	raw, err := msgpack.Marshal(v)
	require.NoError(t, err)
	enc, err := datagram.Encode(raw, []uint8{0})
	require.NoError(t, err)
	frames := datagram.FramesFromDatagram(enc, source)
	out := make([]*canframe.Frame, len(frames))
	for i := range frames {
		out[i] = &frames[i]
	}
	return out
}

func TestWriteConfigRefusesNodeID(t *testing.T) {
	bus := &fakeBus{}
	exec := executor.New(bus, 0)
	exec.SettleDelay = 0

	err := WriteConfig(exec, map[string]any{"ID": uint8(9)}, []uint8{1})
	require.ErrorIs(t, err, ErrConfigRefusesNodeID)
}

func TestPingScanCollectsUntilTimeout(t *testing.T) {
	bus := &fakeBus{}
	bus.recv = append(bus.recv, answerFrames(t, struct{}{}, 3)...)
	bus.recv = append(bus.recv, answerFrames(t, struct{}{}, 7)...)
	bus.recv = append(bus.recv, nil)

	exec := executor.New(bus, 0)
	exec.SettleDelay = 0

	online, err := PingScan(exec)
	require.NoError(t, err)
	assert.Equal(t, []uint8{3, 7}, online)
}

func TestChangeIDUpdatesThenSaves(t *testing.T) {
	bus := &fakeBus{}
	bus.recv = append(bus.recv, answerFrames(t, true, 1)...)
	bus.recv = append(bus.recv, answerFrames(t, true, 9)...)

	exec := executor.New(bus, 0)
	exec.SettleDelay = 0

	err := ChangeID(exec, 1, 9)
	require.NoError(t, err)
}
