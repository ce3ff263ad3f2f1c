// Package controlws implements the WebSocket control/bridging surface:
// one text-message bus per connection carrying the CALL/HANGUP/WAV_UPLOAD/
// PLAY_WAV command grammar inbound and RTP:<hex>/WAV_ACK:<text> frames
// outbound. The WebSocket handshake and frame transport themselves are
// treated as an opaque bus (out of scope per the distilled spec); this
// package owns only the message grammar and the call it drives.
package controlws

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/sebas/sipvoice/internal/rtpmedia"
)

// fragmentTTL bounds how long a partial command buffer survives without a
// completing frame before it is evicted.
const fragmentTTL = 10 * time.Second

// Orchestrator is the subset of callctl.Orchestrator the control surface
// drives; declared locally so this package doesn't import callctl's full
// surface (keeps the dependency direction one-way, as sipdialog/rtpmedia do
// with their own callers).
type Orchestrator interface {
	Call(callee string) error
	Hangup() error
	PlayWav(path string) error
	SetRTPObserver(fn rtpmedia.Observer)
}

// Server accepts raw TCP connections and upgrades them to WebSocket control
// sessions, one per accepted connection (this endpoint expects a single
// controller at a time, but does not itself enforce that — Orchestrator.Call
// already rejects a second concurrent call).
type Server struct {
	orchestrator Orchestrator
	uploadDir    string
	pending      *fragmentStore
}

// NewServer constructs a control server writing WAV_UPLOAD payloads under
// uploadDir.
func NewServer(orchestrator Orchestrator, uploadDir string) *Server {
	return &Server{
		orchestrator: orchestrator,
		uploadDir:    uploadDir,
		pending:      newFragmentStore(fragmentTTL),
	}
}

// Serve accepts connections on ln until it returns an error (typically from
// a Close triggered by shutdown).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops the fragment-reassembly eviction loop.
func (s *Server) Close() {
	s.pending.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	if _, err := ws.Upgrade(conn); err != nil {
		slog.Warn("[ControlWS] Upgrade failed", "remote", conn.RemoteAddr(), "error", err)
		return
	}

	connID := conn.RemoteAddr().String()
	slog.Info("[ControlWS] Connection established", "remote", connID)
	defer func() {
		s.pending.Clear(connID)
		slog.Info("[ControlWS] Connection closed", "remote", connID)
	}()

	s.orchestrator.SetRTPObserver(func(datagram []byte) {
		frame := FormatRTPFrame(datagram)
		if err := wsutil.WriteServerMessage(conn, ws.OpText, []byte(frame)); err != nil {
			slog.Debug("[ControlWS] RTP fan-out write failed", "remote", connID, "error", err)
		}
	})

	for {
		msg, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				slog.Debug("[ControlWS] Read ended", "remote", connID, "error", err)
			}
			return
		}
		if op != ws.OpText {
			continue
		}

		combined := s.pending.Append(connID, msg)
		cmd, err := ParseCommand(string(combined))
		if errors.Is(err, ErrIncompleteCommand) {
			continue
		}
		s.pending.Clear(connID)

		if err != nil {
			s.reply(conn, connID, FormatWavAck("error: "+err.Error()))
			continue
		}
		s.dispatch(conn, connID, cmd)
	}
}

func (s *Server) dispatch(conn net.Conn, connID string, cmd *Command) {
	switch cmd.Kind {
	case CmdCall:
		go func() {
			if err := s.orchestrator.Call(cmd.Digits); err != nil {
				s.reply(conn, connID, FormatWavAck("call failed: "+err.Error()))
				return
			}
			s.reply(conn, connID, FormatWavAck("established"))
		}()

	case CmdHangup:
		if err := s.orchestrator.Hangup(); err != nil {
			s.reply(conn, connID, FormatWavAck("hangup failed: "+err.Error()))
			return
		}
		s.reply(conn, connID, FormatWavAck("idle"))

	case CmdUploadWav:
		path, err := s.saveUpload(cmd.Filename, cmd.Payload)
		if err != nil {
			s.reply(conn, connID, FormatWavAck("upload failed: "+err.Error()))
			return
		}
		slog.Info("[ControlWS] WAV upload saved", "remote", connID, "path", path, "bytes", len(cmd.Payload))
		s.reply(conn, connID, FormatWavAck("upload ok: "+cmd.Filename))

	case CmdPlayWav:
		path := filepath.Join(s.uploadDir, filepath.Base(cmd.Filename))
		if err := s.orchestrator.PlayWav(path); err != nil {
			s.reply(conn, connID, FormatWavAck("play failed: "+err.Error()))
			return
		}
		s.reply(conn, connID, FormatWavAck("playing: "+cmd.Filename))
	}
}

// saveUpload writes payload under uploadDir, rejecting any filename that
// would escape it via path traversal.
func (s *Server) saveUpload(filename string, payload []byte) (string, error) {
	clean := filepath.Base(filename)
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.uploadDir, clean)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Server) reply(conn net.Conn, connID, text string) {
	if err := wsutil.WriteServerMessage(conn, ws.OpText, []byte(text)); err != nil {
		slog.Debug("[ControlWS] Reply write failed", "remote", connID, "error", err)
	}
}
