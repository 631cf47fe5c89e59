package rtpmidi

import (
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iKadmium/go-rtpmidi/control"
	"github.com/iKadmium/go-rtpmidi/participant"
	"github.com/iKadmium/go-rtpmidi/transport"
)

// pendingInvite tracks one outgoing handshake, keyed by initiator token
// until the data-port acceptance moves the peer into the SSRC-keyed
// registry.
type pendingInvite struct {
	token    uint32
	ctrlAddr *net.UDPAddr
	phase    participant.State
	ssrc     uint32
	name     string
	result   chan error
}

// InviteParticipant initiates the two-step handshake with the peer's
// control port and blocks until the participant is established or the
// attempt fails. On success the peer appears in Participants and a
// ParticipantJoined event fires; failures are reported as *InviteError.
//
// Each attempt resends the invitation with the same initiator token; the
// retry cadence is one constant InviteResponseTimeout per attempt, up to
// InviteRetryBudget attempts.
func (s *Session) InviteParticipant(addr *net.UDPAddr) error {
	token := randomUint32()
	inv := &pendingInvite{
		token:    token,
		ctrlAddr: addr,
		phase:    participant.StateInviteSentControl,
		result:   make(chan error, 1),
	}

	s.mu.Lock()
	s.pending[token] = inv
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, token)
		s.mu.Unlock()
	}()

	logrus.WithFields(logrus.Fields{
		"to":    addr,
		"token": fmt.Sprintf("%08x", token),
	}).Info("Inviting participant")

	sendFailures := 0
	for attempt := 0; attempt < s.opts.InviteRetryBudget; attempt++ {
		if err := s.sendInvitation(inv); err != nil {
			sendFailures++
			logrus.WithFields(logrus.Fields{
				"to":      addr,
				"attempt": attempt + 1,
				"error":   err,
			}).Warn("Failed to send invitation")
		}

		select {
		case err := <-inv.result:
			return err
		case <-time.After(s.opts.InviteResponseTimeout):
		case <-s.ctx.Done():
			return &InviteError{Addr: addr.String(), Reason: InviteTimedOut}
		}
	}

	if sendFailures == s.opts.InviteRetryBudget {
		return &InviteError{Addr: addr.String(), Reason: InviteUnreachable}
	}
	return &InviteError{Addr: addr.String(), Reason: InviteTimedOut}
}

// sendInvitation sends the IN packet for the handshake phase the invite
// is currently in: control port first, data port after the control
// acceptance.
func (s *Session) sendInvitation(inv *pendingInvite) error {
	s.mu.Lock()
	phase := inv.phase
	s.mu.Unlock()

	pkt := control.NewInvitation(inv.token, s.ssrc, s.name)
	buf, err := pkt.Marshal()
	if err != nil {
		return err
	}

	if phase == participant.StateInviteSentControl {
		return s.pair.Send(transport.Control, buf, inv.ctrlAddr)
	}
	dataAddr := &net.UDPAddr{IP: inv.ctrlAddr.IP, Port: inv.ctrlAddr.Port + 1, Zone: inv.ctrlAddr.Zone}
	return s.pair.Send(transport.Data, buf, dataAddr)
}

// handleAcceptance advances an outgoing handshake. A control-port OK
// triggers the data-port invitation; a data-port OK establishes the
// participant.
func (s *Session) handleAcceptance(sock transport.Socket, p *control.SessionPacket, addr *net.UDPAddr) {
	s.mu.Lock()
	inv, ok := s.pending[p.InitiatorToken]
	if !ok {
		s.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"from":  addr,
			"token": fmt.Sprintf("%08x", p.InitiatorToken),
		}).Warn("Acceptance with no matching invitation")
		return
	}

	if sock == transport.Control {
		if inv.phase != participant.StateInviteSentControl {
			s.mu.Unlock()
			return
		}
		inv.phase = participant.StateInviteSentData
		inv.ssrc = p.SenderSSRC
		inv.name = p.Name
		s.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"from": addr,
			"ssrc": fmt.Sprintf("%08x", p.SenderSSRC),
			"name": p.Name,
		}).Debug("Control handshake accepted, inviting data port")
		if err := s.sendInvitation(inv); err != nil {
			logrus.WithFields(logrus.Fields{
				"to":    addr,
				"error": err,
			}).Warn("Failed to send data-port invitation")
		}
		return
	}

	if inv.phase != participant.StateInviteSentData {
		s.mu.Unlock()
		return
	}

	np := participant.New(inv.ctrlAddr, inv.ssrc, true, inv.token, inv.name)
	np.State = participant.StateEstablished
	joined := true
	if existing, dup := s.participants[inv.ssrc]; dup {
		// Same-SSRC refresh: keep the original entry's joined history.
		np.Joined = existing.Joined
		joined = !existing.Joined
	}
	np.Joined = true
	s.participants[inv.ssrc] = np
	delete(s.pending, inv.token)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"ssrc": fmt.Sprintf("%08x", np.SSRC),
		"name": np.Name,
	}).Info("Participant established")

	// Kick off clock sync immediately rather than waiting for the ticker.
	now := s.now()
	s.mu.Lock()
	if peer, ok := s.participants[np.SSRC]; ok {
		peer.ProbeSent = now
	}
	s.mu.Unlock()
	s.sendClockSync(now, []*net.UDPAddr{np.DataAddr()})

	if joined {
		s.emit(Event{Type: EventParticipantJoined, SSRC: np.SSRC, Name: np.Name})
	}
	inv.result <- nil
}

// handleRejection fails the matching outgoing invitation; no participant
// is created and no event fires.
func (s *Session) handleRejection(p *control.SessionPacket) {
	s.mu.Lock()
	inv, ok := s.pending[p.InitiatorToken]
	if ok {
		delete(s.pending, p.InitiatorToken)
	}
	s.mu.Unlock()

	if !ok {
		return
	}

	logrus.WithFields(logrus.Fields{
		"to":    inv.ctrlAddr,
		"token": fmt.Sprintf("%08x", p.InitiatorToken),
	}).Info("Invitation rejected by peer")
	inv.result <- &InviteError{Addr: inv.ctrlAddr.String(), Reason: InviteRejected}
}
