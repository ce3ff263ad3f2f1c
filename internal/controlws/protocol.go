package controlws

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// maxUploadBytes is the decoded WAV_UPLOAD size limit (spec.md §7).
const maxUploadBytes = 1 << 20

// CommandKind tags a parsed inbound control message.
type CommandKind int

const (
	CmdCall CommandKind = iota
	CmdHangup
	CmdUploadWav
	CmdPlayWav
)

// Command is one fully reassembled, validated inbound message.
type Command struct {
	Kind     CommandKind
	Digits   string // CALL
	Filename string // WAV_UPLOAD, PLAY_WAV
	Payload  []byte // WAV_UPLOAD, decoded
}

// ParseCommand parses a single text message against the grammar in
// spec.md §6 (CALL:<digits>, HANGUP, WAV_UPLOAD:<filename>:<base64>,
// PLAY_WAV:<filename>). It returns ErrIncompleteCommand when text looks
// like the start of a known verb but is missing required fields — the
// caller should keep accumulating fragments (internal/controlws/pending.go)
// — and ErrUnknownCommand when the verb itself isn't recognized.
func ParseCommand(text string) (*Command, error) {
	switch {
	case text == "HANGUP":
		return &Command{Kind: CmdHangup}, nil

	case strings.HasPrefix(text, "CALL:"):
		digits := strings.TrimPrefix(text, "CALL:")
		if err := validateDigits(digits); err != nil {
			return nil, err
		}
		return &Command{Kind: CmdCall, Digits: digits}, nil

	case strings.HasPrefix(text, "PLAY_WAV:"):
		name := strings.TrimPrefix(text, "PLAY_WAV:")
		if name == "" {
			return nil, ErrIncompleteCommand
		}
		return &Command{Kind: CmdPlayWav, Filename: name}, nil

	case strings.HasPrefix(text, "WAV_UPLOAD:"):
		return parseUpload(strings.TrimPrefix(text, "WAV_UPLOAD:"))

	default:
		return nil, ErrUnknownCommand
	}
}

func validateDigits(digits string) error {
	if len(digits) < 3 {
		return ErrIncompleteCommand
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ErrInvalidDigits
		}
	}
	return nil
}

// parseUpload splits "<filename>:<base64>" and decodes the payload. A
// missing ':' separator is treated as incomplete rather than malformed,
// since the filename and the start of the base64 body may have arrived in
// separate fragments.
func parseUpload(rest string) (*Command, error) {
	sep := strings.IndexByte(rest, ':')
	if sep < 0 {
		return nil, ErrIncompleteCommand
	}
	filename := rest[:sep]
	encoded := rest[sep+1:]
	if filename == "" || encoded == "" {
		return nil, ErrIncompleteCommand
	}

	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// A true corruption and a not-yet-terminated base64 body look
		// identical until the final padding arrives; treat as incomplete
		// and let the TTL in pending.go bound how long we wait.
		return nil, ErrIncompleteCommand
	}
	if len(payload) > maxUploadBytes {
		return nil, ErrUploadTooLarge
	}
	return &Command{Kind: CmdUploadWav, Filename: filename, Payload: payload}, nil
}

// FormatRTPFrame renders a received RTP datagram as the outbound RTP:<hex>
// frame (spec.md §6), hex digits uppercased to match the seeded scenarios.
func FormatRTPFrame(datagram []byte) string {
	return "RTP:" + strings.ToUpper(hex.EncodeToString(datagram))
}

// FormatWavAck renders an outbound status line.
func FormatWavAck(text string) string {
	return "WAV_ACK:" + text
}
