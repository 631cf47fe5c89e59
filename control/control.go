// Package control implements the AppleMIDI control-plane packet codec.
//
// Every control packet starts with the two-byte signature 0xFF 0xFF
// followed by a two-ASCII-byte command code. The session-initiation family
// (IN, OK, NO, BY) shares one body layout; clock sync (CK) and receiver
// feedback (RS) have their own.
package control

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/iKadmium/go-rtpmidi/wire"
)

// ProtocolVersion is the AppleMIDI session protocol version carried by
// session-initiation packets.
const ProtocolVersion uint32 = 2

var signature = [2]byte{0xFF, 0xFF}

var (
	// ErrBadSignature is returned when a buffer does not start with the
	// 0xFF 0xFF control packet signature.
	ErrBadSignature = errors.New("missing control packet signature")

	// ErrNameNotTerminated is returned when a session name is present but
	// has no NUL terminator before the end of the buffer.
	ErrNameNotTerminated = errors.New("session name not NUL terminated")
)

// SessionKind distinguishes the four session-initiation packets.
type SessionKind uint8

const (
	Invitation SessionKind = iota
	Acceptance
	Rejection
	Termination
)

func (k SessionKind) code() [2]byte {
	switch k {
	case Invitation:
		return [2]byte{'I', 'N'}
	case Acceptance:
		return [2]byte{'O', 'K'}
	case Rejection:
		return [2]byte{'N', 'O'}
	default:
		return [2]byte{'B', 'Y'}
	}
}

// String returns the two-letter wire code for the kind.
func (k SessionKind) String() string {
	c := k.code()
	return string(c[:])
}

// Packet is any decoded AppleMIDI control packet.
type Packet interface {
	// Marshal encodes the packet including signature and command code.
	Marshal() ([]byte, error)
}

// SessionPacket is the shared body of IN, OK, NO and BY packets.
//
// Invitations and acceptances carry the sender's session name; rejections
// and terminations do not.
type SessionPacket struct {
	Kind            SessionKind
	ProtocolVersion uint32
	InitiatorToken  uint32
	SenderSSRC      uint32
	Name            string
}

// NewInvitation builds an IN packet.
func NewInvitation(token, ssrc uint32, name string) *SessionPacket {
	return &SessionPacket{Kind: Invitation, ProtocolVersion: ProtocolVersion, InitiatorToken: token, SenderSSRC: ssrc, Name: name}
}

// NewAcceptance builds an OK packet echoing the invitation's token.
func NewAcceptance(token, ssrc uint32, name string) *SessionPacket {
	return &SessionPacket{Kind: Acceptance, ProtocolVersion: ProtocolVersion, InitiatorToken: token, SenderSSRC: ssrc, Name: name}
}

// NewRejection builds a NO packet echoing the invitation's token.
func NewRejection(token, ssrc uint32) *SessionPacket {
	return &SessionPacket{Kind: Rejection, ProtocolVersion: ProtocolVersion, InitiatorToken: token, SenderSSRC: ssrc}
}

// NewTermination builds a BY packet.
func NewTermination(token, ssrc uint32) *SessionPacket {
	return &SessionPacket{Kind: Termination, ProtocolVersion: ProtocolVersion, InitiatorToken: token, SenderSSRC: ssrc}
}

// Marshal encodes the packet. The name, when present, is written UTF-8
// with a single NUL terminator.
func (p *SessionPacket) Marshal() ([]byte, error) {
	size := 4 + 12
	withName := p.Kind == Invitation || p.Kind == Acceptance
	if withName {
		size += len(p.Name) + 1
	}
	w := wire.NewWriter(size)
	code := p.Kind.code()
	w.Raw(signature[:])
	w.Raw(code[:])
	w.U32(p.ProtocolVersion)
	w.U32(p.InitiatorToken)
	w.U32(p.SenderSSRC)
	if withName {
		w.Raw([]byte(p.Name))
		w.U8(0)
	}
	return w.Bytes(), nil
}

// ClockSync is the CK three-message clock probe. Count is 0, 1 or 2;
// unused timestamps are zero. Timestamps are 10 kHz ticks since the
// sender's session start.
type ClockSync struct {
	SenderSSRC uint32
	Count      uint8
	Timestamps [3]uint64
}

// Marshal encodes the CK packet.
func (p *ClockSync) Marshal() ([]byte, error) {
	w := wire.NewWriter(4 + 32)
	w.Raw(signature[:])
	w.Raw([]byte{'C', 'K'})
	w.U32(p.SenderSSRC)
	w.U8(p.Count)
	w.Raw([]byte{0, 0, 0})
	for _, ts := range p.Timestamps {
		w.U64(ts)
	}
	return w.Bytes(), nil
}

// ReceiverFeedback is the RS packet acknowledging the highest data-plane
// sequence number received from a peer.
type ReceiverFeedback struct {
	SenderSSRC     uint32
	SequenceNumber uint32
}

// Marshal encodes the RS packet.
func (p *ReceiverFeedback) Marshal() ([]byte, error) {
	w := wire.NewWriter(4 + 8)
	w.Raw(signature[:])
	w.Raw([]byte{'R', 'S'})
	w.U32(p.SenderSSRC)
	w.U32(p.SequenceNumber)
	return w.Bytes(), nil
}

// IsControlPacket reports whether buf starts with the AppleMIDI control
// signature. Both the control and data port carry control packets; data
// packets never start with 0xFF 0xFF because the RTP version field pins
// the first byte to 0x80.
func IsControlPacket(buf []byte) bool {
	return bytes.HasPrefix(buf, signature[:])
}

// Parse decodes one control packet from buf.
func Parse(buf []byte) (Packet, error) {
	r := wire.NewReader(buf)
	sig, err := r.Bytes(2)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(sig, signature[:]) {
		return nil, ErrBadSignature
	}
	code, err := r.Bytes(2)
	if err != nil {
		return nil, err
	}

	switch string(code) {
	case "IN":
		return parseSession(r, Invitation)
	case "OK":
		return parseSession(r, Acceptance)
	case "NO":
		return parseSession(r, Rejection)
	case "BY":
		return parseSession(r, Termination)
	case "CK":
		return parseClockSync(r)
	case "RS":
		return parseReceiverFeedback(r)
	}
	return nil, fmt.Errorf("unknown control command %q: %w", string(code), ErrBadSignature)
}

func parseSession(r *wire.Reader, kind SessionKind) (*SessionPacket, error) {
	p := &SessionPacket{Kind: kind}
	var err error
	if p.ProtocolVersion, err = r.U32(); err != nil {
		return nil, err
	}
	if p.InitiatorToken, err = r.U32(); err != nil {
		return nil, err
	}
	if p.SenderSSRC, err = r.U32(); err != nil {
		return nil, err
	}
	if r.Remaining() > 0 {
		raw, _ := r.Bytes(r.Remaining())
		nul := bytes.IndexByte(raw, 0)
		if nul < 0 {
			return nil, ErrNameNotTerminated
		}
		p.Name = string(raw[:nul])
	}
	return p, nil
}

func parseClockSync(r *wire.Reader) (*ClockSync, error) {
	p := &ClockSync{}
	var err error
	if p.SenderSSRC, err = r.U32(); err != nil {
		return nil, err
	}
	if p.Count, err = r.U8(); err != nil {
		return nil, err
	}
	if err = r.Skip(3); err != nil {
		return nil, err
	}
	for i := range p.Timestamps {
		if p.Timestamps[i], err = r.U64(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func parseReceiverFeedback(r *wire.Reader) (*ReceiverFeedback, error) {
	p := &ReceiverFeedback{}
	var err error
	if p.SenderSSRC, err = r.U32(); err != nil {
		return nil, err
	}
	if p.SequenceNumber, err = r.U32(); err != nil {
		return nil, err
	}
	return p, nil
}
