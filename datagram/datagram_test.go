package datagram

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/cvra/can-bootloader-go/canframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		data []byte
		dst  []uint8
	}{
		{nil, []uint8{1}},
		{[]byte("hello"), []uint8{1, 2, 3}},
		{[]byte{}, []uint8{42}},
		{make([]byte, 5000), []uint8{1, 127}},
	}
	for _, c := range cases {
		encoded, err := Encode(c.data, c.dst)
		require.NoError(t, err)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		require.NotNil(t, decoded)
		assert.Equal(t, c.data, decoded.Data)
		assert.Equal(t, c.dst, decoded.Destinations)
	}
}

func TestEncodeStartByteIsVersion(t *testing.T) {
	encoded, err := Encode([]byte{}, []uint8{1})
	require.NoError(t, err)
	assert.EqualValues(t, 1, encoded[0])
}

func TestCRCLocationMatchesTail(t *testing.T) {
	encoded, err := Encode([]byte("hello"), []uint8{1})
	require.NoError(t, err)

	tail := append([]byte{1, 1, 0, 0, 0, 5}, []byte("hello")...)
	expected := crc32.ChecksumIEEE(tail)
	got := binary.BigEndian.Uint32(encoded[1:5])
	assert.Equal(t, expected, got)
}

func TestDecodeIncompleteReturnsNil(t *testing.T) {
	encoded, err := Encode([]byte("hello world"), []uint8{1})
	require.NoError(t, err)
	decoded, err := Decode(encoded[:len(encoded)-3])
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestDecodeVersionMismatch(t *testing.T) {
	encoded, err := Encode([]byte("x"), []uint8{1})
	require.NoError(t, err)
	tampered := append([]byte{}, encoded...)
	tampered[0] = 2
	_, err = Decode(tampered)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestDecodeCRCMismatch(t *testing.T) {
	encoded, err := Encode([]byte("x"), []uint8{1})
	require.NoError(t, err)
	tampered := append([]byte{}, encoded...)
	tampered[4] ^= 0xFF
	_, err = Decode(tampered)
	assert.ErrorIs(t, err, ErrCRCMismatch)
}

func TestFragmentationLaw(t *testing.T) {
	encoded, err := Encode([]byte("a quite long payload for fragmentation"), []uint8{5})
	require.NoError(t, err)

	const source = 3
	frames := FramesFromDatagram(encoded, source)

	var reassembled []byte
	for i, f := range frames {
		reassembled = append(reassembled, f.Data...)
		if i == 0 {
			assert.True(t, f.IsStartOfDatagram())
		} else {
			assert.False(t, f.IsStartOfDatagram())
		}
		assert.EqualValues(t, source, f.Source())
	}
	assert.Equal(t, encoded, reassembled)
}

func TestInterleavingLaw(t *testing.T) {
	enc1, _ := Encode([]byte("Hello world"), []uint8{1})
	enc2, _ := Encode([]byte("Hello world"), []uint8{1})

	frames1 := FramesFromDatagram(enc1, 0)
	frames2 := FramesFromDatagram(enc2, 1)

	r := NewReassembler()
	var got []*Received
	maxLen := len(frames1)
	if len(frames2) > maxLen {
		maxLen = len(frames2)
	}
	for i := 0; i < maxLen; i++ {
		if i < len(frames1) {
			if rec, err := r.Feed(frames1[i]); err == nil && rec != nil {
				got = append(got, rec)
			}
		}
		if i < len(frames2) {
			if rec, err := r.Feed(frames2[i]); err == nil && rec != nil {
				got = append(got, rec)
			}
		}
	}

	require.Len(t, got, 2)
	bySource := map[uint8]*Received{}
	for _, rec := range got {
		bySource[rec.Source] = rec
	}
	require.Contains(t, bySource, uint8(0))
	require.Contains(t, bySource, uint8(1))
	assert.Equal(t, []byte("Hello world"), bySource[0].Data)
	assert.Equal(t, []byte("Hello world"), bySource[1].Data)
}

func TestResetOnStartBitDiscardsPartial(t *testing.T) {
	enc, _ := Encode([]byte("first datagram payload"), []uint8{1})
	frames := FramesFromDatagram(enc, 2)
	require.Greater(t, len(frames), 1)

	r := NewReassembler()
	// Feed only the first frame (start bit set), then another start-bit
	// frame from the same source: the partial accumulator must be dropped.
	_, err := r.Feed(frames[0])
	require.NoError(t, err)

	enc2, _ := Encode([]byte("second"), []uint8{1})
	frames2 := FramesFromDatagram(enc2, 2)
	var rec *Received
	for _, f := range frames2 {
		var err error
		rec, err = r.Feed(f)
		require.NoError(t, err)
	}
	require.NotNil(t, rec)
	assert.Equal(t, []byte("second"), rec.Data)
}

func TestExtendedFramesIgnored(t *testing.T) {
	enc, _ := Encode([]byte("payload"), []uint8{1})
	frames := FramesFromDatagram(enc, 4)

	r := NewReassembler()
	_, err := r.Feed(frames[0])
	require.NoError(t, err)

	intruder := canframe.Frame{ID: frames[0].ID, Data: []byte{0xFF}, Extended: true}
	rec, err := r.Feed(intruder)
	require.NoError(t, err)
	assert.Nil(t, rec)

	for _, f := range frames[1:] {
		var err error
		rec, err = r.Feed(f)
		require.NoError(t, err)
	}
	require.NotNil(t, rec)
	assert.Equal(t, []byte("payload"), rec.Data)
}
