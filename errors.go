package rtpmidi

import "fmt"

// InviteFailureReason classifies why an invitation did not result in an
// established participant.
type InviteFailureReason uint8

const (
	// InviteRejected means the peer answered with a NO packet.
	InviteRejected InviteFailureReason = iota
	// InviteTimedOut means the retry budget elapsed with no answer.
	InviteTimedOut
	// InviteUnreachable means every send attempt failed locally.
	InviteUnreachable
)

func (r InviteFailureReason) String() string {
	switch r {
	case InviteRejected:
		return "rejected"
	case InviteTimedOut:
		return "timed out"
	default:
		return "peer unreachable"
	}
}

// InviteError is returned by InviteParticipant when the handshake fails.
type InviteError struct {
	Addr   string
	Reason InviteFailureReason
}

func (e *InviteError) Error() string {
	return fmt.Sprintf("invitation to %s %s", e.Addr, e.Reason)
}

// SendFailureReason classifies why a MIDI broadcast failed.
type SendFailureReason uint8

const (
	// SendNoParticipants means no peer was in the established state.
	SendNoParticipants SendFailureReason = iota
	// SendTransportFailed means peers existed but no datagram could be
	// written to any of them.
	SendTransportFailed
)

func (r SendFailureReason) String() string {
	if r == SendNoParticipants {
		return "no established participants"
	}
	return "transport failed for every participant"
}

// SendError is returned by SendMIDI and SendMIDIBatch when the broadcast
// reached nobody. Failures to individual peers are logged, not returned.
type SendError struct {
	Reason SendFailureReason
}

func (e *SendError) Error() string {
	return "send MIDI: " + e.Reason.String()
}
