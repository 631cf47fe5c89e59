package rtpmidi

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iKadmium/go-rtpmidi/control"
)

const peerReadTimeout = 3 * time.Second

// fakePeer is a hand-driven AppleMIDI endpoint: two adjacent UDP sockets
// and helpers to script the remote side of a handshake exactly.
type fakePeer struct {
	t    *testing.T
	ssrc uint32
	name string
	ctrl *net.UDPConn
	data *net.UDPConn
}

func newFakePeer(t *testing.T, ssrc uint32, name string) *fakePeer {
	t.Helper()

	// The data socket must sit one port above control, so bind pairs
	// until the kernel hands out an address whose neighbour is free.
	for attempt := 0; attempt < 10; attempt++ {
		ctrl, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
		require.NoError(t, err)

		port := ctrl.LocalAddr().(*net.UDPAddr).Port
		data, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port + 1})
		if err != nil {
			ctrl.Close()
			continue
		}
		return &fakePeer{t: t, ssrc: ssrc, name: name, ctrl: ctrl, data: data}
	}
	t.Fatal("could not bind an adjacent UDP port pair")
	return nil
}

func (p *fakePeer) controlAddr() *net.UDPAddr {
	return p.ctrl.LocalAddr().(*net.UDPAddr)
}

func (p *fakePeer) close() {
	p.ctrl.Close()
	p.data.Close()
}

// acceptHandshake answers the control-port and data-port invitations sent
// by the session under test.
func (p *fakePeer) acceptHandshake() {
	p.t.Helper()

	inv, from := p.readSessionPacket(p.ctrl, control.Invitation)
	p.reply(p.ctrl, control.NewAcceptance(inv.InitiatorToken, p.ssrc, p.name), from)

	inv, from = p.readSessionPacket(p.data, control.Invitation)
	p.reply(p.data, control.NewAcceptance(inv.InitiatorToken, p.ssrc, p.name), from)
}

func (p *fakePeer) sendControl(pkt control.Packet, addr *net.UDPAddr) {
	p.reply(p.ctrl, pkt, addr)
}

func (p *fakePeer) sendData(pkt control.Packet, addr *net.UDPAddr) {
	p.reply(p.data, pkt, addr)
}

func (p *fakePeer) reply(conn *net.UDPConn, pkt control.Packet, addr *net.UDPAddr) {
	p.t.Helper()
	buf, err := pkt.Marshal()
	require.NoError(p.t, err)
	_, err = conn.WriteToUDP(buf, addr)
	require.NoError(p.t, err)
}

// readDatagram returns the next datagram on conn, failing the test after
// the read timeout.
func (p *fakePeer) readDatagram(conn *net.UDPConn) ([]byte, *net.UDPAddr) {
	p.t.Helper()
	buf := make([]byte, 65535)
	require.NoError(p.t, conn.SetReadDeadline(time.Now().Add(peerReadTimeout)))
	n, from, err := conn.ReadFromUDP(buf)
	require.NoError(p.t, err, "timed out waiting for datagram")
	return buf[:n], from
}

// readData returns the next RTP-MIDI datagram on the data socket,
// skipping interleaved control traffic such as clock probes.
func (p *fakePeer) readData() []byte {
	p.t.Helper()
	for {
		buf, _ := p.readDatagram(p.data)
		if !control.IsControlPacket(buf) {
			return buf
		}
	}
}

// readClockSync returns the next CK packet on the data socket.
func (p *fakePeer) readClockSync() (*control.ClockSync, *net.UDPAddr) {
	p.t.Helper()
	for {
		buf, from := p.readDatagram(p.data)
		if !control.IsControlPacket(buf) {
			continue
		}
		pkt, err := control.Parse(buf)
		require.NoError(p.t, err)
		if ck, ok := pkt.(*control.ClockSync); ok {
			return ck, from
		}
	}
}

// readSessionPacket returns the next session-initiation packet of the
// wanted kind on conn.
func (p *fakePeer) readSessionPacket(conn *net.UDPConn, kind control.SessionKind) (*control.SessionPacket, *net.UDPAddr) {
	p.t.Helper()
	for {
		buf, from := p.readDatagram(conn)
		if !control.IsControlPacket(buf) {
			continue
		}
		pkt, err := control.Parse(buf)
		require.NoError(p.t, err)
		if sp, ok := pkt.(*control.SessionPacket); ok && sp.Kind == kind {
			return sp, from
		}
	}
}

// readControlKind returns the next session packet of the wanted kind on
// the control socket.
func (p *fakePeer) readControlKind(kind control.SessionKind) *control.SessionPacket {
	pkt, _ := p.readSessionPacket(p.ctrl, kind)
	return pkt
}

// readDataControlKind is readControlKind for the data socket.
func (p *fakePeer) readDataControlKind(kind control.SessionKind) *control.SessionPacket {
	pkt, _ := p.readSessionPacket(p.data, kind)
	return pkt
}

// readControlFeedback returns the next RS packet on the control socket.
func (p *fakePeer) readControlFeedback() *control.ReceiverFeedback {
	p.t.Helper()
	for {
		buf, _ := p.readDatagram(p.ctrl)
		if !control.IsControlPacket(buf) {
			continue
		}
		pkt, err := control.Parse(buf)
		require.NoError(p.t, err)
		if rs, ok := pkt.(*control.ReceiverFeedback); ok {
			return rs
		}
	}
}
