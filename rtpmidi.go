// Package rtpmidi implements RTP-MIDI sessions with AppleMIDI session
// management over a UDP control/data port pair.
//
// A session binds two UDP sockets (control on P, data on P+1), discovers
// peers through explicit invitations or incoming ones, keeps clocks in
// sync with periodic CK probes, and streams MIDI commands to every
// established participant.
//
// Example:
//
//	opts := rtpmidi.NewOptions()
//	opts.Name = "Studio A"
//	opts.Port = 5004
//
//	session, err := rtpmidi.Start(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Stop()
//
//	session.OnMidiPacket(func(p *rtp.Packet) {
//	    fmt.Printf("received %d commands from %08x\n", len(p.Commands), p.SSRC)
//	})
//
//	peer, _ := net.ResolveUDPAddr("udp", "192.168.1.20:5004")
//	if err := session.InviteParticipant(peer); err != nil {
//	    log.Fatal(err)
//	}
//
//	session.SendMIDI(midi.NoteOn{Channel: 1, Key: 64, Velocity: 127})
package rtpmidi

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iKadmium/go-rtpmidi/discovery"
	"github.com/iKadmium/go-rtpmidi/participant"
	"github.com/iKadmium/go-rtpmidi/transport"
)

// clockTick is the AppleMIDI timestamp unit: 100 microseconds (10 kHz).
const clockTick = 100 * time.Microsecond

// livenessSweepInterval is how often silent participants are checked.
const livenessSweepInterval = time.Second

// Session is a running RTP-MIDI session.
type Session struct {
	name string
	ssrc uint32
	opts *Options

	pair *transport.Pair
	adv  *discovery.Advertiser

	start time.Time

	mu           sync.Mutex
	participants map[uint32]*participant.Participant
	pending      map[uint32]*pendingInvite
	listeners    map[EventType][]Listener

	seq atomic.Uint32

	decodeErrors atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start binds the socket pair, spawns the background tasks and returns a
// running session. The only fatal startup error is a bind failure
// (transport.ErrSocketBind); mDNS advertisement trouble is logged only.
func Start(opts *Options) (*Session, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if opts.InvitePolicy == nil {
		opts.InvitePolicy = AcceptAll{}
	}

	ssrc := opts.SSRC
	if ssrc == 0 {
		ssrc = randomUint32()
	}

	// The wire format allows 254 name bytes plus the NUL terminator.
	name := opts.Name
	if len(name) > 254 {
		name = name[:254]
	}

	pair, err := transport.Bind(opts.Port)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		name:         name,
		ssrc:         ssrc,
		opts:         opts,
		pair:         pair,
		start:        time.Now(),
		participants: make(map[uint32]*participant.Participant),
		pending:      make(map[uint32]*pendingInvite),
		listeners:    make(map[EventType][]Listener),
		ctx:          ctx,
		cancel:       cancel,
	}

	logrus.WithFields(logrus.Fields{
		"name":         s.name,
		"ssrc":         fmt.Sprintf("%08x", s.ssrc),
		"control_port": pair.ControlPort(),
		"data_port":    pair.ControlPort() + 1,
	}).Info("RTP-MIDI session starting")

	pair.Start(s.handleDatagram)

	s.wg.Add(2)
	go s.clockSyncLoop()
	go s.livenessLoop()

	if opts.Advertise {
		adv, err := discovery.Advertise(s.name, pair.ControlPort())
		if err != nil {
			logrus.WithError(err).Warn("mDNS advertisement failed")
		} else {
			s.adv = adv
		}
	}

	return s, nil
}

// SSRC returns the local synchronisation source identifier.
func (s *Session) SSRC() uint32 {
	return s.ssrc
}

// Name returns the local session name.
func (s *Session) Name() string {
	return s.name
}

// ControlPort returns the bound control port; the data port is one above.
func (s *Session) ControlPort() uint16 {
	return s.pair.ControlPort()
}

// ParticipantInfo is a snapshot of one remote peer.
type ParticipantInfo struct {
	SSRC        uint32
	Name        string
	ControlAddr *net.UDPAddr
	State       participant.State
	Offsets     []int64
}

// Participants returns a snapshot of the current registry.
func (s *Session) Participants() []ParticipantInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ParticipantInfo, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, ParticipantInfo{
			SSRC:        p.SSRC,
			Name:        p.Name,
			ControlAddr: p.ControlAddr(),
			State:       p.State,
			Offsets:     p.Offsets(),
		})
	}
	return out
}

// DecodeErrorCount reports how many inbound packets have been dropped due
// to decode failures since the session started.
func (s *Session) DecodeErrorCount() uint64 {
	return s.decodeErrors.Load()
}

// Stop shuts the session down: a BY is sent best-effort to every live
// participant, the background tasks are cancelled, and the sockets are
// closed. Listeners are not guaranteed to run for events raised after
// stop begins.
func (s *Session) Stop() {
	s.mu.Lock()
	peers := make([]*participant.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		p.State = participant.StateClosing
		peers = append(peers, p)
	}
	s.participants = make(map[uint32]*participant.Participant)
	s.mu.Unlock()

	for _, p := range peers {
		s.sendBye(p)
	}

	s.cancel()
	if s.adv != nil {
		s.adv.Shutdown()
	}
	if err := s.pair.Close(); err != nil {
		logrus.WithError(err).Warn("Error closing socket pair")
	}
	s.wg.Wait()

	logrus.WithField("name", s.name).Info("RTP-MIDI session stopped")
}

// now returns the session clock: 100 microsecond ticks since start.
func (s *Session) now() uint64 {
	return uint64(time.Since(s.start) / clockTick)
}

// nextSequenceNumber hands out RTP sequence numbers, wrapping at 16 bits.
func (s *Session) nextSequenceNumber() uint16 {
	return uint16(s.seq.Add(1) - 1)
}

// clockSyncLoop initiates a CK exchange with every established
// participant at the configured interval.
func (s *Session) clockSyncLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.ClockSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.probeParticipants()
		}
	}
}

// probeParticipants sends a count-0 CK to each established peer.
func (s *Session) probeParticipants() {
	now := s.now()

	s.mu.Lock()
	targets := make([]*net.UDPAddr, 0, len(s.participants))
	for _, p := range s.participants {
		if p.State != participant.StateEstablished {
			continue
		}
		p.ProbeSent = now
		targets = append(targets, p.DataAddr())
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	s.sendClockSync(now, targets)
}

// livenessLoop drops participants that have been silent for longer than
// the liveness timeout.
func (s *Session) livenessLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(livenessSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweepSilent()
		}
	}
}

func (s *Session) sweepSilent() {
	deadline := time.Now().Add(-s.opts.LivenessTimeout)

	s.mu.Lock()
	var expired []*participant.Participant
	for ssrc, p := range s.participants {
		if p.LastSeen.After(deadline) {
			continue
		}
		p.State = participant.StateClosing
		delete(s.participants, ssrc)
		expired = append(expired, p)
	}
	s.mu.Unlock()

	for _, p := range expired {
		logrus.WithFields(logrus.Fields{
			"ssrc": fmt.Sprintf("%08x", p.SSRC),
			"name": p.Name,
		}).Info("Participant timed out")
		s.sendBye(p)
		if p.Joined {
			s.emit(Event{Type: EventParticipantLeft, SSRC: p.SSRC, Name: p.Name})
		}
	}
}

func randomUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// clock-derived value to keep the session usable if it does.
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}
