// Package transport owns the UDP socket pair used by an RTP-MIDI session:
// a control socket on port P and a data socket on P+1.
//
// Each socket has its own receive loop feeding datagrams to a handler, and
// a serialised send path so concurrent senders never interleave within one
// datagram. The transport knows nothing about packet contents; demux and
// decoding happen in the handler.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrSocketBind is returned when either UDP socket cannot be bound.
var ErrSocketBind = errors.New("failed to bind UDP socket")

// Socket identifies which socket of the pair a datagram arrived on or
// should leave from.
type Socket uint8

const (
	Control Socket = iota
	Data
)

// String names the socket for log fields.
func (s Socket) String() string {
	if s == Control {
		return "control"
	}
	return "data"
}

// Handler processes one received datagram. The buffer is only valid for
// the duration of the call; copy it before retaining.
type Handler func(sock Socket, buf []byte, addr *net.UDPAddr)

// readDeadlineInterval bounds how long a blocked read outlives Close.
const readDeadlineInterval = 100 * time.Millisecond

// Pair is a bound control/data UDP socket pair.
type Pair struct {
	control *net.UDPConn
	data    *net.UDPConn

	controlWriteMu sync.Mutex
	dataWriteMu    sync.Mutex

	handler Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Bind binds the control socket on port and the data socket on port+1 on
// all interfaces. Pass port 0 to let the kernel pick the control port;
// since the neighbouring port may already be taken, a few pairs are tried
// before giving up.
func Bind(port uint16) (*Pair, error) {
	attempts := 1
	if port == 0 {
		attempts = 10
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		control, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(port)})
		if err != nil {
			return nil, fmt.Errorf("%w: control port %d: %v", ErrSocketBind, port, err)
		}

		dataPort := control.LocalAddr().(*net.UDPAddr).Port + 1
		data, err := net.ListenUDP("udp", &net.UDPAddr{Port: dataPort})
		if err != nil {
			control.Close()
			lastErr = fmt.Errorf("%w: data port %d: %v", ErrSocketBind, dataPort, err)
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		return &Pair{
			control: control,
			data:    data,
			ctx:     ctx,
			cancel:  cancel,
		}, nil
	}
	return nil, lastErr
}

// Start registers the datagram handler and launches both receive loops.
func (p *Pair) Start(handler Handler) {
	p.handler = handler
	p.wg.Add(2)
	go p.receiveLoop(Control, p.control)
	go p.receiveLoop(Data, p.data)
}

// ControlPort returns the bound control port. The data port is one above.
func (p *Pair) ControlPort() uint16 {
	return uint16(p.control.LocalAddr().(*net.UDPAddr).Port)
}

// Send writes one datagram atomically on the chosen socket.
func (p *Pair) Send(sock Socket, buf []byte, addr *net.UDPAddr) error {
	var conn *net.UDPConn
	var mu *sync.Mutex
	if sock == Control {
		conn, mu = p.control, &p.controlWriteMu
	} else {
		conn, mu = p.data, &p.dataWriteMu
	}

	mu.Lock()
	defer mu.Unlock()
	_, err := conn.WriteToUDP(buf, addr)
	return err
}

// Close stops both receive loops and closes the sockets. It blocks until
// the loops have exited.
func (p *Pair) Close() error {
	p.cancel()
	cerr := p.control.Close()
	derr := p.data.Close()
	p.wg.Wait()
	if cerr != nil {
		return cerr
	}
	return derr
}

func (p *Pair) receiveLoop(sock Socket, conn *net.UDPConn) {
	defer p.wg.Done()

	buf := make([]byte, 65535)
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(readDeadlineInterval))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if p.ctx.Err() != nil {
				return
			}
			logrus.WithFields(logrus.Fields{
				"socket": sock,
				"error":  err,
			}).Warn("UDP receive failed")
			continue
		}

		logrus.WithFields(logrus.Fields{
			"socket": sock,
			"bytes":  n,
			"from":   addr,
		}).Trace("Received datagram")

		p.handler(sock, buf[:n], addr)
	}
}
