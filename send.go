package rtpmidi

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/iKadmium/go-rtpmidi/midi"
	"github.com/iKadmium/go-rtpmidi/participant"
	"github.com/iKadmium/go-rtpmidi/rtp"
	"github.com/iKadmium/go-rtpmidi/transport"
)

// SendMIDI broadcasts one command to every established participant as a
// single RTP-MIDI packet.
func (s *Session) SendMIDI(cmd midi.Command) error {
	return s.SendMIDIBatch([]midi.Command{cmd})
}

// SendMIDIBatch broadcasts a batch of commands in one packet; all
// commands share the packet timestamp (no delta times are emitted).
//
// A failure to reach an individual peer is logged, not returned, and no
// count of such failures is kept; the call fails only when there is no established participant
// (*SendError with SendNoParticipants) or when no peer could be written
// to at all (SendTransportFailed). Oversized command lists are rejected
// with rtp.ErrCommandListTooLong.
func (s *Session) SendMIDIBatch(cmds []midi.Command) error {
	s.mu.Lock()
	targets := make([]*net.UDPAddr, 0, len(s.participants))
	for _, p := range s.participants {
		if p.State == participant.StateEstablished {
			targets = append(targets, p.DataAddr())
		}
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return &SendError{Reason: SendNoParticipants}
	}

	pkt := &rtp.Packet{
		SequenceNumber: s.nextSequenceNumber(),
		Timestamp:      uint32(s.now()),
		SSRC:           s.ssrc,
		Commands:       cmds,
	}
	buf, err := pkt.Marshal()
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"sequence": pkt.SequenceNumber,
		"commands": len(cmds),
		"peers":    len(targets),
	}).Debug("Broadcasting MIDI packet")

	sent := 0
	for _, addr := range targets {
		if err := s.pair.Send(transport.Data, buf, addr); err != nil {
			logrus.WithFields(logrus.Fields{
				"to":    addr,
				"error": err,
			}).Warn("Failed to send MIDI packet to peer")
			continue
		}
		sent++
	}
	if sent == 0 {
		return &SendError{Reason: SendTransportFailed}
	}
	return nil
}
