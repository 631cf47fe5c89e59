// Package midi implements the byte codec for individual MIDI commands as
// they appear inside an RTP-MIDI command list.
//
// Each command is a small value type carrying its channel and data bytes.
// The codec understands channel voice messages, system common messages,
// single-byte system real-time messages, and System Exclusive messages
// including RTP-MIDI's fragmented SysEx encoding.
//
// Example:
//
//	cmd := midi.NoteOn{Channel: 1, Key: 64, Velocity: 127}
//	buf := midi.Append(nil, cmd)
//	// buf == []byte{0x91, 0x40, 0x7F}
package midi

import "errors"

var (
	// ErrUnknownStatus is returned when a command list byte is not a valid
	// status byte for a decodable command.
	ErrUnknownStatus = errors.New("unknown MIDI status byte")

	// ErrUnterminatedSysEx is returned when a SysEx message reaches the end
	// of the command list without a terminator or a continuation marker.
	ErrUnterminatedSysEx = errors.New("unterminated SysEx message")
)

// Command is one MIDI command as carried by an RTP-MIDI packet.
//
// The concrete types in this package are the only implementations; decode
// never produces anything else.
type Command interface {
	// Status returns the status byte emitted for this command.
	Status() byte

	encodedLen() int
	appendTo(buf []byte) []byte
}

// NoteOff releases a key.
type NoteOff struct {
	Channel  uint8
	Key      uint8
	Velocity uint8
}

// NoteOn presses a key. Velocity zero is carried verbatim, not rewritten
// as a NoteOff.
type NoteOn struct {
	Channel  uint8
	Key      uint8
	Velocity uint8
}

// PolyphonicKeyPressure is per-key aftertouch.
type PolyphonicKeyPressure struct {
	Channel  uint8
	Key      uint8
	Pressure uint8
}

// ControlChange sets a controller value.
type ControlChange struct {
	Channel    uint8
	Controller uint8
	Value      uint8
}

// ProgramChange selects a patch.
type ProgramChange struct {
	Channel uint8
	Program uint8
}

// ChannelPressure is channel-wide aftertouch.
type ChannelPressure struct {
	Channel  uint8
	Pressure uint8
}

// PitchBend carries the 14-bit bend value as its raw LSB/MSB bytes.
type PitchBend struct {
	Channel uint8
	LSB     uint8
	MSB     uint8
}

// SysEx is a complete System Exclusive message. Data holds the payload
// between the 0xF0 and 0xF7 framing bytes; the framing is added on encode
// and stripped on decode. Fragments split across commands in one packet
// are stitched back into a single SysEx by the Decoder.
type SysEx struct {
	Data []byte
}

// TimeCodeQuarterFrame is the MIDI time code quarter-frame message (0xF1).
type TimeCodeQuarterFrame struct {
	Value uint8
}

// SongPositionPointer is the song position message (0xF2).
type SongPositionPointer struct {
	LSB uint8
	MSB uint8
}

// SongSelect is the song select message (0xF3).
type SongSelect struct {
	Song uint8
}

// TuneRequest is the tune request message (0xF6).
type TuneRequest struct{}

// RealTime is a single-byte system real-time message (0xF8-0xFF). It may
// appear between other commands, including inside a fragmented SysEx.
type RealTime uint8

// System real-time status bytes.
const (
	TimingClock   RealTime = 0xF8
	Start         RealTime = 0xFA
	Continue      RealTime = 0xFB
	Stop          RealTime = 0xFC
	ActiveSensing RealTime = 0xFE
	SystemReset   RealTime = 0xFF
)

func (c NoteOff) Status() byte               { return 0x80 | c.Channel&0x0F }
func (c NoteOn) Status() byte                { return 0x90 | c.Channel&0x0F }
func (c PolyphonicKeyPressure) Status() byte { return 0xA0 | c.Channel&0x0F }
func (c ControlChange) Status() byte         { return 0xB0 | c.Channel&0x0F }
func (c ProgramChange) Status() byte         { return 0xC0 | c.Channel&0x0F }
func (c ChannelPressure) Status() byte       { return 0xD0 | c.Channel&0x0F }
func (c PitchBend) Status() byte             { return 0xE0 | c.Channel&0x0F }
func (c SysEx) Status() byte                 { return 0xF0 }
func (c TimeCodeQuarterFrame) Status() byte  { return 0xF1 }
func (c SongPositionPointer) Status() byte   { return 0xF2 }
func (c SongSelect) Status() byte            { return 0xF3 }
func (c TuneRequest) Status() byte           { return 0xF6 }
func (c RealTime) Status() byte              { return byte(c) }

func (c NoteOff) encodedLen() int               { return 3 }
func (c NoteOn) encodedLen() int                { return 3 }
func (c PolyphonicKeyPressure) encodedLen() int { return 3 }
func (c ControlChange) encodedLen() int         { return 3 }
func (c ProgramChange) encodedLen() int         { return 2 }
func (c ChannelPressure) encodedLen() int       { return 2 }
func (c PitchBend) encodedLen() int             { return 3 }
func (c SysEx) encodedLen() int                 { return len(c.Data) + 2 }
func (c TimeCodeQuarterFrame) encodedLen() int  { return 2 }
func (c SongPositionPointer) encodedLen() int   { return 3 }
func (c SongSelect) encodedLen() int            { return 2 }
func (c TuneRequest) encodedLen() int           { return 1 }
func (c RealTime) encodedLen() int              { return 1 }

func (c NoteOff) appendTo(buf []byte) []byte {
	return append(buf, c.Status(), c.Key, c.Velocity)
}

func (c NoteOn) appendTo(buf []byte) []byte {
	return append(buf, c.Status(), c.Key, c.Velocity)
}

func (c PolyphonicKeyPressure) appendTo(buf []byte) []byte {
	return append(buf, c.Status(), c.Key, c.Pressure)
}

func (c ControlChange) appendTo(buf []byte) []byte {
	return append(buf, c.Status(), c.Controller, c.Value)
}

func (c ProgramChange) appendTo(buf []byte) []byte {
	return append(buf, c.Status(), c.Program)
}

func (c ChannelPressure) appendTo(buf []byte) []byte {
	return append(buf, c.Status(), c.Pressure)
}

func (c PitchBend) appendTo(buf []byte) []byte {
	return append(buf, c.Status(), c.LSB, c.MSB)
}

func (c SysEx) appendTo(buf []byte) []byte {
	buf = append(buf, 0xF0)
	buf = append(buf, c.Data...)
	return append(buf, 0xF7)
}

func (c TimeCodeQuarterFrame) appendTo(buf []byte) []byte {
	return append(buf, c.Status(), c.Value)
}

func (c SongPositionPointer) appendTo(buf []byte) []byte {
	return append(buf, c.Status(), c.LSB, c.MSB)
}

func (c SongSelect) appendTo(buf []byte) []byte {
	return append(buf, c.Status(), c.Song)
}

func (c TuneRequest) appendTo(buf []byte) []byte {
	return append(buf, c.Status())
}

func (c RealTime) appendTo(buf []byte) []byte {
	return append(buf, byte(c))
}

// EncodedLen reports how many bytes Append will write for cmd.
func EncodedLen(cmd Command) int {
	return cmd.encodedLen()
}

// Append encodes cmd and appends the bytes to dst.
func Append(dst []byte, cmd Command) []byte {
	return cmd.appendTo(dst)
}
