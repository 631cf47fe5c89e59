// Package participant models one remote peer of an RTP-MIDI session.
//
// A Participant is created when an incoming invitation is accepted or an
// outgoing handshake completes, and lives until a BY packet, a liveness timeout, or session shutdown. All
// fields are guarded by the session's registry lock; the type itself is
// not safe for unsynchronised concurrent use.
package participant

import (
	"net"
	"time"
)

// State is the handshake state of a participant.
type State uint8

const (
	// StateInviteSentControl means the control-port invitation is awaiting
	// its acceptance.
	StateInviteSentControl State = iota
	// StateInviteSentData means the control handshake completed and the
	// data-port invitation (or, for incoming invites, the peer's data-port
	// invitation) is outstanding.
	StateInviteSentData
	// StateEstablished means both handshakes completed; MIDI flows.
	StateEstablished
	// StateClosing means the participant is being torn down.
	StateClosing
)

// String names the state for log fields.
func (s State) String() string {
	switch s {
	case StateInviteSentControl:
		return "invite-sent-control"
	case StateInviteSentData:
		return "invite-sent-data"
	case StateEstablished:
		return "established"
	default:
		return "closing"
	}
}

// offsetRingSize bounds the clock offset sample history per peer.
const offsetRingSize = 8

// Participant is one remote peer.
type Participant struct {
	SSRC           uint32
	Name           string
	State          State
	InitiatorToken uint32
	InvitedByUs    bool

	// Joined records that ParticipantJoined has been emitted for this
	// peer, so a handshake refresh never emits it twice.
	Joined bool

	// LastSeen is the instant of the most recent control- or data-plane
	// packet from this peer.
	LastSeen time.Time

	// ProbeSent holds the T1 tick of the outstanding clock probe, or zero
	// when no probe is in flight.
	ProbeSent uint64

	// HighestSeq is the sequence number of the most recent data packet
	// received from this peer, the value reported back in RS packets. A
	// packet arriving out of order overwrites it with a lower number.
	HighestSeq uint32

	ctrlAddr *net.UDPAddr

	offsets     [offsetRingSize]int64
	offsetCount int
	offsetNext  int
}

// New creates a participant addressed by its control port.
func New(ctrlAddr *net.UDPAddr, ssrc uint32, invitedByUs bool, token uint32, name string) *Participant {
	return &Participant{
		SSRC:           ssrc,
		Name:           name,
		InitiatorToken: token,
		InvitedByUs:    invitedByUs,
		LastSeen:       time.Now(),
		ctrlAddr:       ctrlAddr,
	}
}

// ControlAddr returns the peer's control-port address.
func (p *Participant) ControlAddr() *net.UDPAddr {
	return p.ctrlAddr
}

// DataAddr returns the peer's data-port address, one port above control.
func (p *Participant) DataAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: p.ctrlAddr.IP, Port: p.ctrlAddr.Port + 1, Zone: p.ctrlAddr.Zone}
}

// MarkSeen refreshes the liveness timestamp.
func (p *Participant) MarkSeen(now time.Time) {
	p.LastSeen = now
}

// RecordOffset pushes one clock offset sample (10 kHz ticks, remote minus
// local) into the bounded ring, evicting the oldest when full.
func (p *Participant) RecordOffset(offset int64) {
	p.offsets[p.offsetNext] = offset
	p.offsetNext = (p.offsetNext + 1) % offsetRingSize
	if p.offsetCount < offsetRingSize {
		p.offsetCount++
	}
}

// Offsets returns the recorded clock offset samples, oldest first.
func (p *Participant) Offsets() []int64 {
	out := make([]int64, 0, p.offsetCount)
	start := p.offsetNext - p.offsetCount
	for i := 0; i < p.offsetCount; i++ {
		out = append(out, p.offsets[(start+i+offsetRingSize)%offsetRingSize])
	}
	return out
}
