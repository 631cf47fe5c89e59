package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderReadsNetworkOrder(t *testing.T) {
	buf := []byte{
		0x01,
		0x02, 0x03,
		0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
	}
	r := NewReader(buf)

	v8, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x01), v8)

	v16, err := r.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0203), v16)

	v32, err := r.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04050607), v32)

	v64, err := r.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x08090A0B0C0D0E0F), v64)

	assert.Equal(t, 0, r.Remaining())
	assert.Equal(t, len(buf), r.Offset())
}

func TestReaderTruncation(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		read func(r *Reader) error
	}{
		{"u8 empty", nil, func(r *Reader) error { _, err := r.U8(); return err }},
		{"u16 short", []byte{1}, func(r *Reader) error { _, err := r.U16(); return err }},
		{"u32 short", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.U32(); return err }},
		{"u64 short", []byte{1, 2, 3, 4, 5, 6, 7}, func(r *Reader) error { _, err := r.U64(); return err }},
		{"bytes short", []byte{1, 2}, func(r *Reader) error { _, err := r.Bytes(3); return err }},
		{"skip short", []byte{1, 2}, func(r *Reader) error { return r.Skip(3) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read(NewReader(tt.buf))
			assert.ErrorIs(t, err, ErrTruncatedInput)
		})
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter(16)
	w.U8(0xAB)
	w.U16(0x1234)
	w.U32(0xDEADBEEF)
	w.U64(0x0102030405060708)
	w.Raw([]byte{0xFF})

	r := NewReader(w.Bytes())
	v8, _ := r.U8()
	v16, _ := r.U16()
	v32, _ := r.U32()
	v64, _ := r.U64()
	raw, err := r.Bytes(1)
	require.NoError(t, err)

	assert.Equal(t, uint8(0xAB), v8)
	assert.Equal(t, uint16(0x1234), v16)
	assert.Equal(t, uint32(0xDEADBEEF), v32)
	assert.Equal(t, uint64(0x0102030405060708), v64)
	assert.Equal(t, []byte{0xFF}, raw)
	assert.Equal(t, 16, w.Len())
}
