package rtpmidi

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iKadmium/go-rtpmidi/control"
	"github.com/iKadmium/go-rtpmidi/participant"
	"github.com/iKadmium/go-rtpmidi/rtp"
	"github.com/iKadmium/go-rtpmidi/transport"
)

// handleDatagram is the receive entry point for both sockets. AppleMIDI
// control packets are recognised by their 0xFF 0xFF signature on either
// port; everything else on the data port is treated as RTP-MIDI.
func (s *Session) handleDatagram(sock transport.Socket, buf []byte, addr *net.UDPAddr) {
	if control.IsControlPacket(buf) {
		pkt, err := control.Parse(buf)
		if err != nil {
			s.dropPacket(sock, addr, err)
			return
		}
		s.handleControlPacket(sock, pkt, addr)
		return
	}

	if sock != transport.Data {
		s.dropPacket(sock, addr, control.ErrBadSignature)
		return
	}

	pkt, err := rtp.Parse(buf)
	if err != nil {
		s.dropPacket(sock, addr, err)
		return
	}
	s.handleMidiPacket(pkt)
}

// dropPacket counts and logs an undecodable datagram. Decode errors never
// reach listeners and never stop the receive loops.
func (s *Session) dropPacket(sock transport.Socket, addr *net.UDPAddr, err error) {
	s.decodeErrors.Add(1)
	logrus.WithFields(logrus.Fields{
		"socket": sock,
		"from":   addr,
		"error":  err,
	}).Warn("Dropping undecodable packet")
}

func (s *Session) handleControlPacket(sock transport.Socket, pkt control.Packet, addr *net.UDPAddr) {
	switch p := pkt.(type) {
	case *control.SessionPacket:
		switch p.Kind {
		case control.Invitation:
			s.handleInvitation(sock, p, addr)
		case control.Acceptance:
			s.handleAcceptance(sock, p, addr)
		case control.Rejection:
			s.handleRejection(p)
		case control.Termination:
			s.handleTermination(p)
		}
	case *control.ClockSync:
		s.handleClockSync(sock, p, addr)
	case *control.ReceiverFeedback:
		s.handleReceiverFeedback(p)
	}
}

// handleInvitation runs the two-step incoming handshake: the control-port
// invitation is answered after consulting the invite policy, then the
// peer's data-port invitation completes the session.
func (s *Session) handleInvitation(sock transport.Socket, p *control.SessionPacket, addr *net.UDPAddr) {
	if sock == transport.Control {
		if !s.opts.InvitePolicy.Decide(p, addr) {
			logrus.WithFields(logrus.Fields{
				"from": addr,
				"name": p.Name,
			}).Info("Rejecting session invitation")
			s.sendControl(transport.Control, control.NewRejection(p.InitiatorToken, s.ssrc), addr)
			return
		}

		s.mu.Lock()
		existing, ok := s.participants[p.SenderSSRC]
		if ok {
			// Same-SSRC invite refreshes the handshake without a second
			// joined event.
			existing.State = participant.StateInviteSentData
			existing.InitiatorToken = p.InitiatorToken
			existing.Name = p.Name
			existing.MarkSeen(time.Now())
		} else {
			np := participant.New(addr, p.SenderSSRC, false, p.InitiatorToken, p.Name)
			np.State = participant.StateInviteSentData
			s.participants[p.SenderSSRC] = np
		}
		s.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"from": addr,
			"ssrc": fmt.Sprintf("%08x", p.SenderSSRC),
			"name": p.Name,
		}).Info("Accepted session invitation")
		s.sendControl(transport.Control, control.NewAcceptance(p.InitiatorToken, s.ssrc, s.name), addr)
		return
	}

	// Data-port invitation: only valid for a peer mid-handshake.
	s.mu.Lock()
	peer, ok := s.participants[p.SenderSSRC]
	var joined bool
	if ok {
		peer.MarkSeen(time.Now())
		if peer.State != participant.StateEstablished {
			peer.State = participant.StateEstablished
			joined = !peer.Joined
			peer.Joined = true
		}
	}
	name := ""
	if ok {
		name = peer.Name
	}
	s.mu.Unlock()

	if !ok {
		logrus.WithFields(logrus.Fields{
			"from": addr,
			"ssrc": fmt.Sprintf("%08x", p.SenderSSRC),
		}).Warn("Data-port invitation for unknown peer")
		s.sendControl(transport.Data, control.NewRejection(p.InitiatorToken, s.ssrc), addr)
		return
	}

	s.sendControl(transport.Data, control.NewAcceptance(p.InitiatorToken, s.ssrc, s.name), addr)
	if joined {
		logrus.WithFields(logrus.Fields{
			"ssrc": fmt.Sprintf("%08x", p.SenderSSRC),
			"name": name,
		}).Info("Participant established")
		s.emit(Event{Type: EventParticipantJoined, SSRC: p.SenderSSRC, Name: name})
	}
}

// handleTermination removes the peer without answering; BY is terminal.
func (s *Session) handleTermination(p *control.SessionPacket) {
	s.mu.Lock()
	peer, ok := s.participants[p.SenderSSRC]
	if ok {
		peer.State = participant.StateClosing
		delete(s.participants, p.SenderSSRC)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	logrus.WithFields(logrus.Fields{
		"ssrc": fmt.Sprintf("%08x", p.SenderSSRC),
		"name": peer.Name,
	}).Info("Participant ended session")
	if peer.Joined {
		s.emit(Event{Type: EventParticipantLeft, SSRC: p.SenderSSRC, Name: peer.Name})
	}
}

// handleClockSync implements both roles of the CK exchange. Probes are
// answered on the socket they arrived on.
func (s *Session) handleClockSync(sock transport.Socket, p *control.ClockSync, addr *net.UDPAddr) {
	s.markSeen(p.SenderSSRC)

	switch p.Count {
	case 0:
		// Responder: fill T2.
		reply := &control.ClockSync{
			SenderSSRC: s.ssrc,
			Count:      1,
			Timestamps: [3]uint64{p.Timestamps[0], s.now(), 0},
		}
		s.sendControl(sock, reply, addr)

	case 1:
		// Initiator: peer echoed our T1 and filled T2; answer with T3 and
		// record the offset estimate.
		t3 := s.now()
		reply := &control.ClockSync{
			SenderSSRC: s.ssrc,
			Count:      2,
			Timestamps: [3]uint64{p.Timestamps[0], p.Timestamps[1], t3},
		}
		s.sendControl(sock, reply, addr)
		s.recordOffset(p.SenderSSRC, clockOffset(p.Timestamps[0], p.Timestamps[1], t3))

	case 2:
		// Responder end of the round: T2 was our clock.
		s.recordOffset(p.SenderSSRC, -clockOffset(p.Timestamps[0], p.Timestamps[1], p.Timestamps[2]))

	default:
		logrus.WithFields(logrus.Fields{
			"from":  addr,
			"count": p.Count,
		}).Warn("Clock sync with unexpected count")
	}
}

// clockOffset estimates the remote-minus-local clock offset from one
// completed round, in 10 kHz ticks: T2 against the midpoint of T1 and T3.
func clockOffset(t1, t2, t3 uint64) int64 {
	return int64(t2) - int64(t1+t3)/2
}

func (s *Session) recordOffset(ssrc uint32, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[ssrc]; ok {
		p.ProbeSent = 0
		p.RecordOffset(offset)
	}
}

func (s *Session) handleReceiverFeedback(p *control.ReceiverFeedback) {
	s.markSeen(p.SenderSSRC)
	logrus.WithFields(logrus.Fields{
		"ssrc":        fmt.Sprintf("%08x", p.SenderSSRC),
		"highest_seq": p.SequenceNumber,
	}).Debug("Receiver feedback")
}

// handleMidiPacket delivers a decoded data packet to listeners and
// acknowledges it with receiver feedback. Packets from unknown SSRCs are
// dropped silently.
func (s *Session) handleMidiPacket(pkt *rtp.Packet) {
	s.mu.Lock()
	peer, ok := s.participants[pkt.SSRC]
	var feedbackAddr *net.UDPAddr
	if ok {
		peer.MarkSeen(time.Now())
		peer.HighestSeq = uint32(pkt.SequenceNumber)
		feedbackAddr = peer.ControlAddr()
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	s.sendControl(transport.Control, &control.ReceiverFeedback{
		SenderSSRC:     s.ssrc,
		SequenceNumber: uint32(pkt.SequenceNumber),
	}, feedbackAddr)

	s.emit(Event{Type: EventMidiPacket, SSRC: pkt.SSRC, Packet: pkt})
}

// markSeen refreshes liveness for a known peer.
func (s *Session) markSeen(ssrc uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[ssrc]; ok {
		p.MarkSeen(time.Now())
	}
}

// sendControl marshals and sends one control packet, logging failures.
func (s *Session) sendControl(sock transport.Socket, pkt control.Packet, addr *net.UDPAddr) {
	buf, err := pkt.Marshal()
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal control packet")
		return
	}
	if err := s.pair.Send(sock, buf, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"socket": sock,
			"to":     addr,
			"error":  err,
		}).Warn("Failed to send control packet")
	}
}

// sendBye sends a best-effort BY to a departing peer's control port.
func (s *Session) sendBye(p *participant.Participant) {
	s.sendControl(transport.Control, control.NewTermination(p.InitiatorToken, s.ssrc), p.ControlAddr())
}

// sendClockSync sends a count-0 probe to each target data address.
func (s *Session) sendClockSync(t1 uint64, targets []*net.UDPAddr) {
	pkt := &control.ClockSync{
		SenderSSRC: s.ssrc,
		Count:      0,
		Timestamps: [3]uint64{t1, 0, 0},
	}
	buf, err := pkt.Marshal()
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal clock sync packet")
		return
	}
	for _, addr := range targets {
		if err := s.pair.Send(transport.Data, buf, addr); err != nil {
			logrus.WithFields(logrus.Fields{
				"to":    addr,
				"error": err,
			}).Warn("Failed to send clock sync probe")
		}
	}
}
