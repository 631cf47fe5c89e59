package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iKadmium/go-rtpmidi/midi"
	"github.com/iKadmium/go-rtpmidi/wire"
)

func TestMarshalSingleNoteOn(t *testing.T) {
	pkt := &Packet{
		SequenceNumber: 0x0102,
		Timestamp:      0x03040506,
		SSRC:           0x0708090A,
		Commands:       []midi.Command{midi.NoteOn{Channel: 1, Key: 64, Velocity: 127}},
	}

	buf, err := pkt.Marshal()
	require.NoError(t, err)

	want := []byte{
		0x80, 0x61, // version 2, payload type 97
		0x01, 0x02, // sequence number
		0x03, 0x04, 0x05, 0x06, // timestamp
		0x07, 0x08, 0x09, 0x0A, // ssrc
		0x03,             // command list header: 3 bytes, no flags
		0x91, 0x40, 0x7F, // note on
	}
	assert.Equal(t, want, buf)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		commands []midi.Command
	}{
		{"single note on", []midi.Command{midi.NoteOn{Channel: 1, Key: 64, Velocity: 127}}},
		{
			"mixed commands",
			[]midi.Command{
				midi.NoteOn{Channel: 0, Key: 60, Velocity: 100},
				midi.ControlChange{Channel: 0, Controller: 7, Value: 90},
				midi.TimingClock,
				midi.NoteOff{Channel: 0, Key: 60, Velocity: 0},
			},
		},
		{"sysex", []midi.Command{midi.SysEx{Data: []byte{0x7E, 0x7F, 0x06, 0x01}}}},
		{"empty list", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := &Packet{
				SequenceNumber: 0xFFFF,
				Timestamp:      12345,
				SSRC:           0x00ABCDEF,
				Commands:       tt.commands,
			}

			buf, err := pkt.Marshal()
			require.NoError(t, err)

			parsed, err := Parse(buf)
			require.NoError(t, err)
			assert.Equal(t, pkt.SequenceNumber, parsed.SequenceNumber)
			assert.Equal(t, pkt.Timestamp, parsed.Timestamp)
			assert.Equal(t, pkt.SSRC, parsed.SSRC)
			assert.Equal(t, tt.commands, parsed.Commands)
		})
	}
}

func TestCommandListHeaderBoundary(t *testing.T) {
	// Five 3-byte commands: 15 bytes fits the short 4-bit length.
	short := make([]midi.Command, 5)
	// Sixteen bytes needs the long two-byte header.
	long := make([]midi.Command, 5)
	for i := range short {
		short[i] = midi.NoteOn{Channel: 0, Key: uint8(i), Velocity: 1}
		long[i] = midi.NoteOn{Channel: 0, Key: uint8(i), Velocity: 1}
	}
	long = append(long, midi.TuneRequest{})

	shortBuf, err := (&Packet{Commands: short}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, byte(0x0F), shortBuf[12], "15-byte list uses the short header")
	assert.Len(t, shortBuf, 12+1+15)

	longBuf, err := (&Packet{Commands: long}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, byte(flagB), longBuf[12], "16-byte list sets B with zero high nibble")
	assert.Equal(t, byte(16), longBuf[13])
	assert.Len(t, longBuf, 12+2+16)

	parsedShort, err := Parse(shortBuf)
	require.NoError(t, err)
	assert.Len(t, parsedShort.Commands, 5)

	parsedLong, err := Parse(longBuf)
	require.NoError(t, err)
	assert.Len(t, parsedLong.Commands, 6)
}

func TestCommandListTooLong(t *testing.T) {
	pkt := &Packet{Commands: []midi.Command{midi.SysEx{Data: make([]byte, 4095)}}}
	_, err := pkt.Marshal()
	assert.ErrorIs(t, err, ErrCommandListTooLong)
}

func TestParseFragmentedSysEx(t *testing.T) {
	// Command list carrying a SysEx split into two commands; the second
	// chunk is preceded by a delta time, as any command after the first
	// may be.
	list := []byte{
		0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF0, // first chunk, to be continued
		0x00,                   // delta time
		0xF7, 0x02, 0x03, 0xF7, // final chunk
	}
	payload := append([]byte{byte(len(list))}, list...)
	buf := appendTestHeader(t, payload)

	parsed, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, parsed.Commands, 1)
	assert.Equal(t, midi.SysEx{Data: []byte{0x7E, 0x7F, 0x06, 0x01, 0x02, 0x03}}, parsed.Commands[0])
}

func TestParseZFlagAndDeltaTimes(t *testing.T) {
	list := []byte{
		0x81, 0x00, // two-byte delta time for the first command
		0x91, 0x40, 0x7F, // note on
		0x7F,             // delta time
		0x81, 0x40, 0x00, // note off
	}
	payload := append([]byte{flagZ | byte(len(list))}, list...)
	buf := appendTestHeader(t, payload)

	parsed, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, []midi.Command{
		midi.NoteOn{Channel: 1, Key: 0x40, Velocity: 0x7F},
		midi.NoteOff{Channel: 1, Key: 0x40, Velocity: 0x00},
	}, parsed.Commands)
}

func TestParseSkipsJournal(t *testing.T) {
	list := []byte{0x91, 0x40, 0x7F}
	payload := append([]byte{flagJ | byte(len(list))}, list...)
	// Journal bytes after the command list must be ignored.
	payload = append(payload, 0xDE, 0xAD, 0xBE, 0xEF)
	buf := appendTestHeader(t, payload)

	parsed, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, []midi.Command{midi.NoteOn{Channel: 1, Key: 0x40, Velocity: 0x7F}}, parsed.Commands)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{"empty payload", nil, wire.ErrTruncatedInput},
		{"list longer than payload", []byte{0x05, 0x91}, wire.ErrTruncatedInput},
		{"long header missing second byte", []byte{flagB}, wire.ErrTruncatedInput},
		{"unterminated sysex", []byte{0x03, 0xF0, 0x01, 0x02}, midi.ErrUnterminatedSysEx},
		{"data byte without status", []byte{0x02, 0x40, 0x7F}, midi.ErrUnknownStatus},
		{"delta time with nothing after", []byte{flagZ | 0x01, 0x00}, wire.ErrTruncatedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(appendTestHeader(t, tt.payload))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseRejectsForeignPackets(t *testing.T) {
	// Valid RTP, wrong payload type.
	opus := &Packet{Commands: nil}
	buf, err := opus.Marshal()
	require.NoError(t, err)
	buf[1] = 96

	_, err = Parse(buf)
	assert.ErrorIs(t, err, ErrNotDataPacket)

	_, err = Parse([]byte{0x80})
	assert.ErrorIs(t, err, wire.ErrTruncatedInput)
}

func TestDeltaTime(t *testing.T) {
	tests := []struct {
		value uint32
		bytes []byte
	}{
		{0, []byte{0x00}},
		{0x40, []byte{0x40}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x81, 0x00}},
		{0x2000, []byte{0xC0, 0x00}},
		{0x3FFF, []byte{0xFF, 0x7F}},
		{0x4000, []byte{0x81, 0x80, 0x00}},
		{0x1FFFFF, []byte{0xFF, 0xFF, 0x7F}},
		{0x200000, []byte{0x81, 0x80, 0x80, 0x00}},
		{maxDeltaTime, []byte{0xFF, 0xFF, 0xFF, 0x7F}},
	}

	for _, tt := range tests {
		got := appendDeltaTime(nil, tt.value)
		assert.Equal(t, tt.bytes, got, "encoding %#x", tt.value)
		assert.Equal(t, len(tt.bytes), deltaTimeLen(tt.value))

		value, n, err := readDeltaTime(tt.bytes)
		require.NoError(t, err)
		assert.Equal(t, tt.value, value)
		assert.Equal(t, len(tt.bytes), n)
	}
}

func TestDeltaTimeErrors(t *testing.T) {
	_, _, err := readDeltaTime([]byte{0x81, 0x80})
	assert.ErrorIs(t, err, wire.ErrTruncatedInput)

	_, _, err = readDeltaTime([]byte{0x81, 0x80, 0x80, 0x80, 0x00})
	assert.ErrorIs(t, err, errDeltaTimeTooLong)
}

// appendTestHeader prefixes a fixed RTP-MIDI header onto a payload.
func appendTestHeader(t *testing.T, payload []byte) []byte {
	t.Helper()
	header := []byte{
		0x80, 0x61,
		0x00, 0x01,
		0x00, 0x00, 0x00, 0x02,
		0x00, 0x00, 0x00, 0x03,
	}
	return append(header, payload...)
}
