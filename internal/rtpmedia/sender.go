package rtpmedia

import (
	"io"
	"net"
	"sync/atomic"
	"time"
)

// frameSize is the payload length per packet: 160 bytes of μ-law is 20ms
// at 8kHz (spec.md §3 SendStream, GLOSSARY PCMU).
const frameSize = 160

// frameInterval paces packet transmission to real time (spec.md §4.2.2).
const frameInterval = 20 * time.Millisecond

// Sender streams a μ-law source in 160-byte frames to the negotiated
// remote RTP endpoint, on a local port distinct from the receiver's
// (spec.md §4.2.2's "separate local port" default strategy).
type Sender struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr

	seq       uint16
	timestamp uint32
	ssrc      uint32

	stopped atomic.Bool
}

// NewSender binds localPort and resolves the remote RTP endpoint learned
// from the SDP answer.
func NewSender(localPort int, remoteIP string, remotePort int, ssrc uint32) (*Sender, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: localPort})
	if err != nil {
		return nil, &BindError{Port: localPort, Err: err}
	}
	return &Sender{
		conn:       conn,
		remoteAddr: &net.UDPAddr{IP: net.ParseIP(remoteIP), Port: remotePort},
		ssrc:       ssrc,
	}, nil
}

// Stream reads frameSize chunks from src until EOF or Stop, pacing one
// packet per frameInterval. It returns nil at end-of-stream; the call
// remains established afterward (spec.md §4.2.2).
func (s *Sender) Stream(src io.Reader) error {
	buf := make([]byte, frameSize)
	for !s.stopped.Load() {
		n, err := io.ReadFull(src, buf)
		if n == 0 {
			break
		}
		frame := buf[:n]

		datagram, mErr := BuildPacket(s.seq, s.timestamp, s.ssrc, frame)
		if mErr != nil {
			return mErr
		}
		if _, wErr := s.conn.WriteToUDP(datagram, s.remoteAddr); wErr != nil {
			return wErr
		}

		s.seq++
		s.timestamp += uint32(n)

		if err != nil {
			break // short final frame was still sent; end of stream now
		}
		time.Sleep(frameInterval)
	}
	return nil
}

// Stop signals Stream to return at the next frame boundary and closes the
// send socket.
func (s *Sender) Stop() error {
	s.stopped.Store(true)
	return s.conn.Close()
}
