package midi

import "github.com/iKadmium/go-rtpmidi/wire"

// Decoder decodes MIDI commands from an RTP-MIDI command list.
//
// The decoder is stateful so that a SysEx message split across several
// commands within one packet (a chunk ending 0xF0 continued by a chunk
// beginning 0xF7) is reassembled into a single SysEx value. State never
// carries across packets; create a fresh Decoder per command list.
type Decoder struct {
	pending []byte
	open    bool
}

// Next decodes one command from the front of data and reports how many
// bytes it consumed.
//
// When a non-final SysEx fragment is absorbed the returned Command is nil
// with a non-zero consumed count; the stitched SysEx is returned by the
// call that consumes the final fragment.
func (d *Decoder) Next(data []byte) (Command, int, error) {
	if len(data) == 0 {
		return nil, 0, wire.ErrTruncatedInput
	}

	status := data[0]

	// Real-time bytes are one-byte commands and may appear anywhere,
	// including between SysEx fragments.
	if status >= 0xF8 {
		return RealTime(status), 1, nil
	}

	if d.open {
		if status != 0xF7 {
			return nil, 0, ErrUnknownStatus
		}
		return d.sysExChunk(data)
	}

	switch {
	case status == 0xF0:
		return d.sysExChunk(data)
	case status < 0x80:
		// Running status is not used inside RTP-MIDI command lists.
		return nil, 0, ErrUnknownStatus
	}

	switch status & 0xF0 {
	case 0x80:
		k, v, err := twoData(data)
		return NoteOff{Channel: status & 0x0F, Key: k, Velocity: v}, 3, err
	case 0x90:
		k, v, err := twoData(data)
		return NoteOn{Channel: status & 0x0F, Key: k, Velocity: v}, 3, err
	case 0xA0:
		k, p, err := twoData(data)
		return PolyphonicKeyPressure{Channel: status & 0x0F, Key: k, Pressure: p}, 3, err
	case 0xB0:
		c, v, err := twoData(data)
		return ControlChange{Channel: status & 0x0F, Controller: c, Value: v}, 3, err
	case 0xC0:
		p, err := oneData(data)
		return ProgramChange{Channel: status & 0x0F, Program: p}, 2, err
	case 0xD0:
		p, err := oneData(data)
		return ChannelPressure{Channel: status & 0x0F, Pressure: p}, 2, err
	case 0xE0:
		l, m, err := twoData(data)
		return PitchBend{Channel: status & 0x0F, LSB: l, MSB: m}, 3, err
	}

	// System common, 0xF1-0xF6.
	switch status {
	case 0xF1:
		v, err := oneData(data)
		return TimeCodeQuarterFrame{Value: v}, 2, err
	case 0xF2:
		l, m, err := twoData(data)
		return SongPositionPointer{LSB: l, MSB: m}, 3, err
	case 0xF3:
		s, err := oneData(data)
		return SongSelect{Song: s}, 2, err
	case 0xF6:
		return TuneRequest{}, 1, nil
	}

	return nil, 0, ErrUnknownStatus
}

// Close reports whether the command list ended cleanly. It fails with
// ErrUnterminatedSysEx when a fragmented SysEx was started but the final
// 0xF7-terminated chunk never arrived.
func (d *Decoder) Close() error {
	if d.open {
		return ErrUnterminatedSysEx
	}
	return nil
}

// sysExChunk consumes one SysEx chunk starting at data[0] (0xF0 for the
// first fragment, 0xF7 for a continuation). A chunk ending in 0xF7
// completes the message; a chunk ending in 0xF0 marks it to be continued.
func (d *Decoder) sysExChunk(data []byte) (Command, int, error) {
	for i := 1; i < len(data); i++ {
		switch data[i] {
		case 0xF7:
			payload := append(d.pending, data[1:i]...)
			d.pending = nil
			d.open = false
			return SysEx{Data: payload}, i + 1, nil
		case 0xF0:
			d.pending = append(d.pending, data[1:i]...)
			d.open = true
			return nil, i + 1, nil
		}
	}
	return nil, 0, ErrUnterminatedSysEx
}

func oneData(data []byte) (uint8, error) {
	if len(data) < 2 {
		return 0, wire.ErrTruncatedInput
	}
	return data[1], nil
}

func twoData(data []byte) (uint8, uint8, error) {
	if len(data) < 3 {
		return 0, 0, wire.ErrTruncatedInput
	}
	return data[1], data[2], nil
}
