package rtpmidi

import (
	"net"
	"time"

	"github.com/iKadmium/go-rtpmidi/control"
)

// InvitePolicy decides whether to accept an incoming session invitation.
//
// Decide is called on the receive path with the parsed invitation and the
// sender's address; it must not block.
type InvitePolicy interface {
	Decide(invite *control.SessionPacket, addr *net.UDPAddr) bool
}

// AcceptAll accepts every incoming invitation.
type AcceptAll struct{}

func (AcceptAll) Decide(*control.SessionPacket, *net.UDPAddr) bool { return true }

// RejectAll rejects every incoming invitation.
type RejectAll struct{}

func (RejectAll) Decide(*control.SessionPacket, *net.UDPAddr) bool { return false }

// PolicyFunc adapts a function to the InvitePolicy interface.
type PolicyFunc func(invite *control.SessionPacket, addr *net.UDPAddr) bool

func (f PolicyFunc) Decide(invite *control.SessionPacket, addr *net.UDPAddr) bool {
	return f(invite, addr)
}

// Options contains configuration for creating a session.
type Options struct {
	// Name is the session name sent in invitations and advertised over
	// mDNS. At most 254 bytes of UTF-8.
	Name string

	// Port is the control port; the data socket binds one above. Zero
	// lets the kernel choose.
	Port uint16

	// SSRC is the local synchronisation source identifier. Zero means
	// pick one at random.
	SSRC uint32

	// InvitePolicy decides incoming invitations. Defaults to AcceptAll.
	InvitePolicy InvitePolicy

	// InviteResponseTimeout bounds how long each invitation attempt waits
	// for an answer.
	InviteResponseTimeout time.Duration

	// InviteRetryBudget is the number of invitation attempts before
	// giving up.
	InviteRetryBudget int

	// ClockSyncInterval is the period of the CK probe sent to each
	// established participant.
	ClockSyncInterval time.Duration

	// LivenessTimeout is how long a participant may stay silent before it
	// is dropped.
	LivenessTimeout time.Duration

	// Advertise registers the session with mDNS on start. Advertisement
	// failures are logged, never fatal.
	Advertise bool
}

// NewOptions returns the default configuration.
func NewOptions() *Options {
	return &Options{
		Name:                  "go-rtpmidi",
		Port:                  5004,
		InvitePolicy:          AcceptAll{},
		InviteResponseTimeout: 5 * time.Second,
		InviteRetryBudget:     12,
		ClockSyncInterval:     10 * time.Second,
		LivenessTimeout:       60 * time.Second,
	}
}
