package sipdialog

import (
	"fmt"
	"log/slog"
	"strconv"
)

// maxWaitPolls bounds the INVITE wait loop: 30 consecutive 500ms polls
// without progress is a signalling timeout (spec.md §4.1).
const maxWaitPolls = 30

// byePolls is how long BYE waits for its 200, best-effort (spec.md §4.1).
const byePolls = 5

// ProgressKind tags a mid-transaction notification Invite surfaces to its
// caller before the transaction resolves to Established or an error
// (spec.md §4.3's Dialing -> Authenticating transition, and any 18x
// response becoming visible as Ringing).
type ProgressKind int

const (
	ProgressRinging ProgressKind = iota
	ProgressAuthenticating
)

// Session is the dialog and its transport state (spec.md §3 SipSession).
// It is created by NewSession, mutated only by the SIP worker that calls
// Invite/Bye/Close, and never touched concurrently — the orchestrator only
// reads RemoteRTPPort/ToTag/Established after Invite returns successfully.
type Session struct {
	CallerNumber string
	LocalIP      string
	LocalSIPPort int

	ServerHost string
	ServerPort int
	Callee     string

	AuthUser     string
	AuthPassword string

	CallID  string
	FromTag string
	ToTag   string

	CSeq       int
	LocalRTPPort int

	RemoteRTPHost string
	RemoteRTPPort int

	Established bool

	// OnProgress, if set before Invite is called, is invoked synchronously
	// from the caller's goroutine for each 18x provisional response (not for
	// 100 Trying) and each 401/407 reauthentication attempt — the orchestrator subscribes to
	// drive its Dialing/Authenticating state and Ringing event (spec.md
	// §4.3).
	OnProgress func(ProgressKind)

	transport *Transport
}

// NewSession binds the signalling socket and seeds dialog identifiers.
// CSeq starts at 102 per spec.md §4.1.
func NewSession(callerNumber, localIP string, localSIPPort int, serverHost string, serverPort int, callee, authUser, authPassword string, localRTPPort int) (*Session, error) {
	t, err := NewTransport(localIP, localSIPPort, serverHost, serverPort)
	if err != nil {
		return nil, err
	}
	return &Session{
		CallerNumber: callerNumber,
		LocalIP:      localIP,
		LocalSIPPort: localSIPPort,
		ServerHost:   serverHost,
		ServerPort:   serverPort,
		Callee:       callee,
		AuthUser:     authUser,
		AuthPassword: authPassword,
		CallID:       NewCallID(),
		FromTag:      NewTag(),
		CSeq:         102,
		LocalRTPPort: localRTPPort,
		transport:    t,
	}, nil
}

func (s *Session) requestURI() string {
	return fmt.Sprintf("sip:%s@%s", s.Callee, s.ServerHost)
}

// Invite runs the client INVITE transaction: send, wait for provisional/
// final responses, reauthenticate at most once on 401/407, and ACK a 2xx
// with a fresh branch carrying the 200's own To-tag. A To-tag seen on an
// earlier 18x is used for the ACK only when the 200 carries none.
func (s *Session) Invite() error {
	s.transport.Drain()

	branch := NewBranch()
	offer := BuildOffer(s.LocalIP, s.LocalRTPPort)
	req := BuildInvite(inviteParams{
		CallerUser: s.CallerNumber,
		Callee:     s.Callee,
		Server:     s.ServerHost,
		LocalIP:    s.LocalIP,
		LocalPort:  s.LocalSIPPort,
		Branch:     branch,
		FromTag:    s.FromTag,
		CallID:     s.CallID,
		CSeq:       s.CSeq,
		SDPBody:    offer,
	})
	if err := s.transport.Send(req); err != nil {
		return fmt.Errorf("sip: send invite: %w", err)
	}

	authAttempted := false
	noProgress := 0

	for {
		data, ok, err := s.transport.Poll()
		if err != nil {
			return fmt.Errorf("sip: poll: %w", err)
		}
		if !ok {
			noProgress++
			if noProgress >= maxWaitPolls {
				return ErrNoProgress
			}
			continue
		}
		noProgress = 0

		resp, err := ParseResponse(data)
		if err != nil {
			slog.Warn("[SIP] Dropping unparseable datagram", "error", err)
			continue
		}

		switch {
		case resp.Code == 100:
			slog.Debug("[SIP] 100 Trying")
			continue

		case resp.Code >= 180 && resp.Code < 200:
			slog.Debug("[SIP] Provisional", "code", resp.Code, "reason", resp.Reason)
			if tag := ToTagFromHeader(resp.Header("To")); tag != "" {
				s.ToTag = tag
			}
			if s.OnProgress != nil {
				s.OnProgress(ProgressRinging)
			}
			continue

		case resp.Code == 200:
			if tag := ToTagFromHeader(resp.Header("To")); tag != "" {
				s.ToTag = tag
			}
			answer, err := ParseAnswer(resp.Body)
			if err != nil {
				return err
			}
			s.RemoteRTPHost = answer.RemoteIP
			s.RemoteRTPPort = answer.RemotePort

			if err := s.sendAck(); err != nil {
				return err
			}
			s.Established = true
			return nil

		case resp.Code == 401 || resp.Code == 407:
			if authAttempted {
				return ErrAuthRetried
			}
			authAttempted = true
			if s.OnProgress != nil {
				s.OnProgress(ProgressAuthenticating)
			}

			headerName := "WWW-Authenticate"
			if resp.Code == 407 {
				headerName = "Proxy-Authenticate"
			}
			chal, err := ParseChallenge(resp.Header(headerName))
			if err != nil {
				return err
			}
			authHeader, err := BuildAuthorization(chal, s.AuthUser, s.AuthPassword, "INVITE", s.requestURI())
			if err != nil {
				return fmt.Errorf("sip: auth: %w", err)
			}

			s.transport.Drain()
			branch = NewBranch()
			retry := BuildInvite(inviteParams{
				CallerUser: s.CallerNumber,
				Callee:     s.Callee,
				Server:     s.ServerHost,
				LocalIP:    s.LocalIP,
				LocalPort:  s.LocalSIPPort,
				Branch:     branch,
				FromTag:    s.FromTag,
				CallID:     s.CallID,
				CSeq:       s.CSeq, // CSeq is reused across the challenged retry, per RFC 3261 §22.2
				AuthHeader: authHeader,
				SDPBody:    offer,
			})
			if err := s.transport.Send(retry); err != nil {
				return fmt.Errorf("sip: send authenticated invite: %w", err)
			}

		case resp.Code == 403:
			return &RejectionError{Code: resp.Code, Reason: resp.Reason}

		case resp.Code >= 300:
			return &RejectionError{Code: resp.Code, Reason: resp.Reason}
		}
	}
}

func (s *Session) sendAck() error {
	ack := BuildAck(ackParams{
		Callee:     s.Callee,
		Server:     s.ServerHost,
		LocalIP:    s.LocalIP,
		LocalPort:  s.LocalSIPPort,
		Branch:     NewBranch(),
		FromTag:    s.FromTag,
		ToTag:      s.ToTag,
		CallID:     s.CallID,
		CSeq:       s.CSeq,
		CallerUser: s.CallerNumber,
	})
	if err := s.transport.Send(ack); err != nil {
		return fmt.Errorf("sip: send ack: %w", err)
	}
	return nil
}

// Bye sends BYE and waits briefly (best-effort) for a 200 response.
func (s *Session) Bye() error {
	s.transport.Drain()

	bye := BuildBye(byeParams{
		Callee:     s.Callee,
		Server:     s.ServerHost,
		LocalIP:    s.LocalIP,
		LocalPort:  s.LocalSIPPort,
		Branch:     NewBranch(),
		FromTag:    s.FromTag,
		ToTag:      s.ToTag,
		CallID:     s.CallID,
		CSeq:       s.CSeq + 1,
		CallerUser: s.CallerNumber,
	})
	if err := s.transport.Send(bye); err != nil {
		return fmt.Errorf("sip: send bye: %w", err)
	}

	for i := 0; i < byePolls; i++ {
		data, ok, err := s.transport.Poll()
		if err != nil {
			slog.Warn("[SIP] Poll error waiting for BYE response", "error", err)
			return nil
		}
		if !ok {
			continue
		}
		resp, err := ParseResponse(data)
		if err != nil {
			continue
		}
		slog.Debug("[SIP] BYE response", "code", strconv.Itoa(resp.Code))
		return nil
	}
	slog.Warn("[SIP] No response to BYE within wait window")
	return nil
}

// Close releases the signalling socket.
func (s *Session) Close() error {
	return s.transport.Close()
}
