// Package rtp implements the RTP-MIDI data packet: a standard RTP header
// with payload type 97 followed by a MIDI command list.
//
// The 12-byte RTP header is handled by the pion/rtp library; the MIDI
// command list (flags, 4- or 12-bit length, optional delta times, command
// bytes) is encoded and decoded here. The recovery journal is never
// emitted and its body is ignored on receive.
package rtp

import (
	"errors"
	"fmt"

	"github.com/pion/rtp"

	"github.com/iKadmium/go-rtpmidi/midi"
	"github.com/iKadmium/go-rtpmidi/wire"
)

// PayloadType is the RTP payload type used for MIDI command lists.
const PayloadType uint8 = 0x61

// maxCommandListLen is the largest command list a single packet can carry;
// the long-form header length field is 12 bits.
const maxCommandListLen = 0x0FFF

var (
	// ErrCommandListTooLong is returned when the encoded commands exceed
	// the 12-bit command list length field.
	ErrCommandListTooLong = errors.New("command list exceeds 4095 bytes")

	// ErrNotDataPacket is returned when a buffer is not an RTP-MIDI data
	// packet (wrong RTP version or payload type).
	ErrNotDataPacket = errors.New("not an RTP-MIDI data packet")

	errDeltaTimeTooLong = errors.New("delta time longer than four bytes")
)

// Command list header flags.
const (
	flagB = 0x80 // long (12-bit) length
	flagJ = 0x40 // journal present
	flagZ = 0x20 // delta time on first command
	flagP = 0x10 // phantom status
)

// Packet is one RTP-MIDI data packet.
//
// On encode all commands are emitted back to back with no delta times
// (simultaneous at Timestamp); on decode per-command delta times are
// parsed and discarded, and fragmented SysEx commands are stitched.
type Packet struct {
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	Commands       []midi.Command
}

// Marshal encodes the packet ready to be sent as one datagram.
func (p *Packet) Marshal() ([]byte, error) {
	listLen := 0
	for _, cmd := range p.Commands {
		listLen += midi.EncodedLen(cmd)
	}
	if listLen > maxCommandListLen {
		return nil, fmt.Errorf("%d command bytes: %w", listLen, ErrCommandListTooLong)
	}

	header := rtp.Header{
		Version:        2,
		PayloadType:    PayloadType,
		SequenceNumber: p.SequenceNumber,
		Timestamp:      p.Timestamp,
		SSRC:           p.SSRC,
	}

	headerLen := 1
	if listLen > 0x0F {
		headerLen = 2
	}
	payload := make([]byte, 0, headerLen+listLen)
	if listLen > 0x0F {
		payload = append(payload, flagB|byte(listLen>>8), byte(listLen))
	} else {
		payload = append(payload, byte(listLen))
	}
	for _, cmd := range p.Commands {
		payload = midi.Append(payload, cmd)
	}

	return (&rtp.Packet{Header: header, Payload: payload}).Marshal()
}

// Parse decodes an RTP-MIDI data packet.
func Parse(buf []byte) (*Packet, error) {
	var raw rtp.Packet
	if err := raw.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrTruncatedInput, err)
	}
	if raw.Version != 2 || raw.PayloadType != PayloadType {
		return nil, ErrNotDataPacket
	}

	p := &Packet{
		SequenceNumber: raw.SequenceNumber,
		Timestamp:      raw.Timestamp,
		SSRC:           raw.SSRC,
	}

	commands, err := parseCommandList(raw.Payload)
	if err != nil {
		return nil, err
	}
	p.Commands = commands
	return p, nil
}

// parseCommandList decodes the command list section of the payload. Bytes
// past the declared list length belong to the journal and are skipped.
func parseCommandList(payload []byte) ([]midi.Command, error) {
	if len(payload) < 1 {
		return nil, wire.ErrTruncatedInput
	}

	flags := payload[0]
	var listLen, offset int
	if flags&flagB != 0 {
		if len(payload) < 2 {
			return nil, wire.ErrTruncatedInput
		}
		listLen = int(flags&0x0F)<<8 | int(payload[1])
		offset = 2
	} else {
		listLen = int(flags & 0x0F)
		offset = 1
	}
	if len(payload) < offset+listLen {
		return nil, wire.ErrTruncatedInput
	}
	body := payload[offset : offset+listLen]

	var commands []midi.Command
	dec := &midi.Decoder{}
	readDelta := flags&flagZ != 0
	for len(body) > 0 {
		if readDelta {
			_, n, err := readDeltaTime(body)
			if err != nil {
				return nil, err
			}
			body = body[n:]
			if len(body) == 0 {
				return nil, wire.ErrTruncatedInput
			}
		}
		cmd, n, err := dec.Next(body)
		if err != nil {
			return nil, err
		}
		body = body[n:]
		if cmd != nil {
			commands = append(commands, cmd)
		}
		// After the first command a delta time is optional: Marshal writes
		// commands back to back, other senders may precede each command
		// with one. A command always starts with a status byte, so a
		// leading byte below 0x80 is read as a one-byte delta time.
		readDelta = len(body) > 0 && body[0] < 0x80
	}
	if err := dec.Close(); err != nil {
		return nil, err
	}
	return commands, nil
}
