package canframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFrameRejectsOversizedPayload(t *testing.T) {
	_, err := NewFrame(0x10, make([]byte, 9), false, false)
	assert.ErrorIs(t, err, ErrFrameSizeInvalid)
}

func TestNewFrameAcceptsUpToEightBytes(t *testing.T) {
	f, err := NewFrame(0x10, make([]byte, 8), false, false)
	assert.NoError(t, err)
	assert.Len(t, f.Data, 8)
}

func TestEqualComparesIDAndData(t *testing.T) {
	a, _ := NewFrame(1, []byte{1, 2, 3}, false, false)
	b, _ := NewFrame(1, []byte{1, 2, 3}, false, false)
	c, _ := NewFrame(1, []byte{1, 2, 4}, false, false)
	d, _ := NewFrame(2, []byte{1, 2, 3}, false, false)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestFrameIDStartBitAndSource(t *testing.T) {
	id := FrameID(true, 5)
	f := Frame{ID: id}
	assert.True(t, f.IsStartOfDatagram())
	assert.EqualValues(t, 5, f.Source())

	id = FrameID(false, 5)
	f = Frame{ID: id}
	assert.False(t, f.IsStartOfDatagram())
	assert.EqualValues(t, 5, f.Source())
}
