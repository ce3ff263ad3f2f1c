package sipdialog

import (
	"fmt"
	"net"
	"time"
)

// PollInterval is the signalling socket's timed-receive granularity
// (spec.md §4.1: "Poll the signalling socket with a 500 ms timeout").
const PollInterval = 500 * time.Millisecond

// Transport owns the UDP signalling socket for one dialog. It is mutated
// only by the SIP worker (spec.md §5).
type Transport struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
}

// NewTransport binds a UDP socket on localIP:localPort and resolves the
// remote signalling address.
func NewTransport(localIP string, localPort int, serverHost string, serverPort int) (*Transport, error) {
	localAddr := &net.UDPAddr{IP: net.ParseIP(localIP), Port: localPort}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("sip transport: bind %s:%d: %w", localIP, localPort, err)
	}

	remoteAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", serverHost, serverPort))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sip transport: resolve %s:%d: %w", serverHost, serverPort, err)
	}

	return &Transport{conn: conn, remoteAddr: remoteAddr}, nil
}

// Send writes a request datagram to the SIP server.
func (t *Transport) Send(msg []byte) error {
	_, err := t.conn.WriteToUDP(msg, t.remoteAddr)
	return err
}

// Drain reads and discards any datagrams already queued on the socket, so a
// new request's responses aren't confused with stale ones (spec.md §4.1
// "Socket hygiene").
func (t *Transport) Drain() {
	buf := make([]byte, 65536)
	for {
		// A deadline already in the past fails the read before the socket
		// is looked at, so give each read a short window instead.
		_ = t.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		_, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
	}
}

// Poll performs one timed receive with a 500ms deadline. ok is false on a
// read timeout; err is non-nil only for a real socket failure.
func (t *Transport) Poll() (data []byte, ok bool, err error) {
	buf := make([]byte, 65536)
	_ = t.conn.SetReadDeadline(time.Now().Add(PollInterval))
	n, _, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, isNetErr := err.(net.Error); isNetErr && ne.Timeout() {
			return nil, false, nil
		}
		return nil, false, err
	}
	return buf[:n], true, nil
}

// Close releases the signalling socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}
