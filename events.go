package rtpmidi

import (
	"github.com/sirupsen/logrus"

	"github.com/iKadmium/go-rtpmidi/rtp"
)

// EventType identifies the kind of session event a listener receives.
type EventType uint8

const (
	// EventMidiPacket fires for every decoded inbound RTP-MIDI packet.
	EventMidiPacket EventType = iota
	// EventParticipantJoined fires once when a peer becomes established.
	EventParticipantJoined
	// EventParticipantLeft fires once when an established peer ends the
	// session or times out. Stop does not emit it.
	EventParticipantLeft
)

// Event is delivered to listeners registered with AddListener.
type Event struct {
	Type EventType

	// SSRC identifies the peer the event concerns.
	SSRC uint32

	// Name is the peer's session name for join/leave events.
	Name string

	// Packet carries the decoded data packet for EventMidiPacket.
	Packet *rtp.Packet
}

// Listener is a session event callback. Each event gets its own dispatch
// goroutine, which runs that event's listeners in registration order;
// separate events may be dispatched concurrently. Listeners should not
// block for long, and a panicking listener is recovered and logged.
type Listener func(Event)

// AddListener registers a callback for one event kind. The listener table
// is append-only; listeners live until the session stops.
func (s *Session) AddListener(kind EventType, fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[kind] = append(s.listeners[kind], fn)
}

// OnMidiPacket registers a listener for inbound MIDI packets.
func (s *Session) OnMidiPacket(fn func(*rtp.Packet)) {
	s.AddListener(EventMidiPacket, func(e Event) { fn(e.Packet) })
}

// OnParticipantJoined registers a listener for newly established peers.
func (s *Session) OnParticipantJoined(fn func(ssrc uint32, name string)) {
	s.AddListener(EventParticipantJoined, func(e Event) { fn(e.SSRC, e.Name) })
}

// OnParticipantLeft registers a listener for departed peers.
func (s *Session) OnParticipantLeft(fn func(ssrc uint32, name string)) {
	s.AddListener(EventParticipantLeft, func(e Event) { fn(e.SSRC, e.Name) })
}

// emit fans an event out to its listeners on a fresh goroutine so the
// receive loops never wait on user code. Must not be called with s.mu
// held.
func (s *Session) emit(e Event) {
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners[e.Type]))
	copy(listeners, s.listeners[e.Type])
	s.mu.Unlock()

	if len(listeners) == 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, fn := range listeners {
			invoke(fn, e)
		}
	}()
}

// invoke runs one listener, isolating panics so a faulty callback cannot
// take down the dispatch goroutine.
func invoke(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"event": e.Type,
				"panic": r,
			}).Error("Session listener panicked")
		}
	}()
	fn(e)
}
