package rtpmedia

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sebas/sipvoice/internal/wavmedia"
)

// receiveTimeout bounds each socket read so the worker can observe the
// cancel flag without blocking indefinitely (spec.md §4.2.1).
const receiveTimeout = 1 * time.Second

// silenceWindow is how long without a packet triggers a "no packets"
// diagnostic and a watermark reset (spec.md §4.2.1).
const silenceWindow = 30 * time.Second

// warnAfterTimeouts is the consecutive-timeout count that triggers a
// warning log (spec.md §4.2.1).
const warnAfterTimeouts = 3

// Observer is invoked with the full datagram for every received RTP
// packet. It must be reentrancy-safe and must not block (spec.md §5).
type Observer func(datagram []byte)

// ReceiverStats is the counter snapshot returned by Receiver.Stats and
// Orchestrator.Stats; cmd/rtpreceive logs it once when the call ends. It
// is not part of any WAV_ACK text (SPEC_FULL.md §3, added).
type ReceiverStats struct {
	Packets   uint64
	Bytes     uint64
	Lost      uint64
	RealAudio bool
}

// Receiver is the process-wide RTP receiver state (spec.md §3
// RtpReceiverState). It is constructed, started, and stopped by the
// orchestrator; exactly one worker goroutine reads the socket while
// running is true.
type Receiver struct {
	conn *net.UDPConn

	running       atomic.Bool
	packetCount   atomic.Uint64
	byteCount     atomic.Uint64
	realAudioSeen atomic.Bool

	observer atomic.Value // holds Observer
	wav      *wavmedia.Writer
	rawDump  io.WriteCloser

	seq *SequenceTracker

	done chan struct{}
}

// NewReceiver binds the local RTP receive port. wavPath is required;
// rawDump is an optional additional sink (spec.md §3: "optional raw-dump
// sink").
func NewReceiver(localPort int, wavPath string, rawDump io.WriteCloser) (*Receiver, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: localPort})
	if err != nil {
		return nil, &BindError{Port: localPort, Err: err}
	}

	wav, err := wavmedia.NewWriter(wavPath)
	if err != nil {
		conn.Close()
		return nil, err
	}

	r := &Receiver{
		conn:    conn,
		wav:     wav,
		rawDump: rawDump,
		seq:     NewSequenceTracker(),
		done:    make(chan struct{}),
	}
	r.observer.Store(Observer(nil))
	return r, nil
}

// SetObserver installs (or clears, with nil) the per-datagram callback.
// Only the orchestrator calls this; the receive worker loads it
// atomically (spec.md §5).
func (r *Receiver) SetObserver(obs Observer) {
	r.observer.Store(obs)
}

// Stats returns a snapshot of the receiver's counters.
func (r *Receiver) Stats() ReceiverStats {
	_, lost := r.seq.Stats()
	return ReceiverStats{
		Packets:   r.packetCount.Load(),
		Bytes:     r.byteCount.Load(),
		Lost:      lost,
		RealAudio: r.realAudioSeen.Load(),
	}
}

// Run blocks, reading datagrams until Stop closes the socket. Callers run
// this in its own goroutine (the "RTP receive worker", spec.md §5).
func (r *Receiver) Run() {
	r.running.Store(true)
	defer close(r.done)

	buf := make([]byte, 65536)
	consecutiveTimeouts := 0
	lastPacketAt := time.Now()

	for r.running.Load() {
		_ = r.conn.SetReadDeadline(time.Now().Add(receiveTimeout))
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				consecutiveTimeouts++
				if consecutiveTimeouts == warnAfterTimeouts {
					slog.Warn("[RTP] No packets for consecutive poll cycles", "cycles", consecutiveTimeouts)
				}
				if time.Since(lastPacketAt) >= silenceWindow {
					slog.Info("[RTP] No packets received recently", "silence", time.Since(lastPacketAt))
					lastPacketAt = time.Now()
				}
				continue
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EBADF) || errors.Is(err, syscall.EINVAL) {
				return
			}
			slog.Warn("[RTP] Socket read error, continuing", "error", err)
			continue
		}

		consecutiveTimeouts = 0
		lastPacketAt = time.Now()
		r.handleDatagram(buf[:n])
	}
}

func (r *Receiver) handleDatagram(datagram []byte) {
	if len(datagram) < HeaderSize {
		return
	}
	payload := datagram[HeaderSize:]

	count := r.packetCount.Add(1)
	r.byteCount.Add(uint64(len(datagram)))
	r.realAudioSeen.Store(true)

	hdr, hdrPayload, err := ParsePacket(datagram)
	if err == nil {
		r.seq.Update(hdr.SequenceNumber)
		payload = hdrPayload
	}

	switch {
	case count <= 3:
		slog.Debug("[RTP] Packet received", "count", count, "bytes", len(datagram))
	case count <= 5:
		slog.Debug("[RTP] Packet received (summary)", "count", count)
	case count%50 == 0:
		slog.Info("[RTP] Packet milestone", "count", count)
	}

	if obs, _ := r.observer.Load().(Observer); obs != nil {
		obs(datagram)
	}
	if r.wav != nil {
		if err := r.wav.Write(payload); err != nil {
			slog.Warn("[RTP] WAV write failed", "error", err)
		}
	}
	if r.rawDump != nil {
		if _, err := r.rawDump.Write(payload); err != nil {
			slog.Warn("[RTP] Raw dump write failed", "error", err)
		}
	}
}

// Stop clears the running flag, closes the socket (unblocking the
// in-flight receive), joins the worker, and patches the output WAV,
// synthesizing a tone first if no real audio arrived (spec.md §4.2.1).
func (r *Receiver) Stop() error {
	r.running.Store(false)
	_ = r.conn.Close()
	<-r.done

	if r.rawDump != nil {
		_ = r.rawDump.Close()
	}

	if !r.realAudioSeen.Load() {
		if err := r.wav.Write(wavmedia.SynthesizeTone()); err != nil {
			slog.Warn("[RTP] Failed writing synthetic tone", "error", err)
		}
	}
	return r.wav.Finalize()
}
