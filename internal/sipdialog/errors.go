package sipdialog

import (
	"errors"
	"fmt"
)

// Sentinel errors, checked with errors.Is per the error-kind taxonomy this
// endpoint uses (config/transport/protocol/auth/rejection/timeout).
var (
	ErrProtocol       = errors.New("sip: malformed message")
	ErrNoAudioMedia   = errors.New("sip: sdp answer has no m=audio line")
	ErrAuthChallenge  = errors.New("sip: challenge missing realm or nonce")
	ErrAuthRetried    = errors.New("sip: second challenge after authenticated retry")
	ErrNoProgress     = errors.New("sip: no response within wait window")
	ErrTerminalStatus = errors.New("sip: terminal rejection status")
)

// RejectionError captures a terminal 3xx-6xx response.
type RejectionError struct {
	Code   int
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("sip: %d %s", e.Code, e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrTerminalStatus }

// ParseError wraps a wire-codec failure with the offending line.
type ParseError struct {
	Context string
	Line    string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sip: %s: %q: %v", e.Context, e.Line, e.Cause)
	}
	return fmt.Sprintf("sip: %s: %q", e.Context, e.Line)
}

func (e *ParseError) Unwrap() error { return ErrProtocol }
