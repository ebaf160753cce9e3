package slipframe

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{1, 2, 3},
		bytes.Repeat([]byte{0x42}, 200),
		{ESC},
		{END},
		{ESC, END, ESC, ESC},
	}
	for _, payload := range cases {
		encoded := Encode(payload)
		decoded, err := Decode(encoded[:len(encoded)-1])
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
	}
}

func TestEncodeEscapesEscFirst(t *testing.T) {
	encoded := Encode([]byte{ESC})
	assert.True(t, bytes.HasPrefix(encoded, []byte{ESC, ESCESC}))

	encoded = Encode([]byte{END})
	assert.True(t, bytes.HasPrefix(encoded, []byte{ESC, ESCEND}))
}

func TestEncodeTerminatesWithEnd(t *testing.T) {
	encoded := Encode([]byte("hello"))
	assert.Equal(t, END, encoded[len(encoded)-1])
}

func TestDecodeFrameTooShort(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestDecodeCRCMismatch(t *testing.T) {
	encoded := Encode([]byte("hello"))
	tampered := append([]byte{}, encoded[:len(encoded)-1]...)
	tampered[0] ^= 0xFF
	_, err := Decode(tampered)
	assert.ErrorIs(t, err, ErrCRCMismatch)
}

type stepReader struct {
	chunks [][]byte
	idx    int
}

func (r *stepReader) Read(p []byte) (int, error) {
	if r.idx >= len(r.chunks) {
		return 0, io.EOF
	}
	chunk := r.chunks[r.idx]
	r.idx++
	if len(chunk) == 0 {
		return 0, nil // timeout tick
	}
	n := copy(p, chunk)
	return n, nil
}

func TestReaderTimeoutTick(t *testing.T) {
	src := &stepReader{chunks: [][]byte{{}, {}}}
	r := NewReader(src)
	frame, err := r.ReadFrame()
	assert.NoError(t, err)
	assert.Nil(t, frame)
}

func TestReaderReadsFullFrame(t *testing.T) {
	payload := []byte("hello")
	encoded := Encode(payload)
	chunks := make([][]byte, 0, len(encoded))
	for _, b := range encoded {
		chunks = append(chunks, []byte{b})
	}
	src := &stepReader{chunks: chunks}
	r := NewReader(src)
	frame, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, payload, frame)
}
