package sipdialog

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// message is the pure wire codec for the subset of RFC 3261 this endpoint
// speaks: request/response line, a fixed set of headers in the exact order
// spec.md §4.1 requires, and body framing via Content-Length. It does no
// I/O — building and parsing are both plain string transforms, kept
// separate from the socket-owning transaction engine in session.go.

const crlf = "\r\n"

// newHex returns n random bytes hex-encoded, used for branches, tags and
// Call-IDs.
func newHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewBranch returns a fresh RFC 3261 magic-cookie branch parameter.
func NewBranch() string { return "z9hG4bK" + newHex(8) }

// NewTag returns a fresh From/To tag.
func NewTag() string { return newHex(4) }

// NewCallID returns a fresh Call-ID local part; the caller appends "@host".
func NewCallID() string { return newHex(8) }

// inviteParams carries everything needed to render an INVITE. AuthHeader is
// empty on the first attempt and populated on the authenticated retry.
type inviteParams struct {
	CallerUser, Callee, Server string
	LocalIP                    string
	LocalPort                  int
	Branch                     string
	FromTag                    string
	CallID                     string
	CSeq                       int
	AuthHeader                 string
	SDPBody                    string
}

// BuildInvite renders the INVITE request exactly as spec.md §4.1 specifies,
// in the given header order. AuthHeader, when non-empty, is inserted as the
// Authorization header on a challenged retry.
func BuildInvite(p inviteParams) []byte {
	var b strings.Builder
	requestURI := fmt.Sprintf("sip:%s@%s", p.Callee, p.Server)

	fmt.Fprintf(&b, "INVITE %s SIP/2.0%s", requestURI, crlf)
	fmt.Fprintf(&b, "Via: SIP/2.0/UDP %s:%d;branch=%s%s", p.LocalIP, p.LocalPort, p.Branch, crlf)
	fmt.Fprintf(&b, "Max-Forwards: 70%s", crlf)
	fmt.Fprintf(&b, "From: <sip:%s@%s>;tag=%s%s", p.CallerUser, p.Server, p.FromTag, crlf)
	fmt.Fprintf(&b, "To: <sip:%s@%s>%s", p.Callee, p.Server, crlf)
	fmt.Fprintf(&b, "Contact: <sip:%s@%s:%d>%s", p.CallerUser, p.LocalIP, p.LocalPort, crlf)
	fmt.Fprintf(&b, "Call-ID: %s@%s%s", p.CallID, p.Server, crlf)
	fmt.Fprintf(&b, "CSeq: %d INVITE%s", p.CSeq, crlf)
	if p.AuthHeader != "" {
		fmt.Fprintf(&b, "Authorization: %s%s", p.AuthHeader, crlf)
	}
	fmt.Fprintf(&b, "Content-Type: application/sdp%s", crlf)
	fmt.Fprintf(&b, "Content-Length: %d%s", len(p.SDPBody), crlf)
	b.WriteString(crlf)
	b.WriteString(p.SDPBody)
	return []byte(b.String())
}

// ackParams carries everything needed to render an ACK for a 2xx response.
type ackParams struct {
	Callee, Server string
	LocalIP        string
	LocalPort      int
	Branch         string
	FromTag        string
	ToTag          string
	CallID         string
	CSeq           int
	CallerUser     string
}

// BuildAck renders the ACK for a 2xx final response: a fresh branch, the
// learned To-tag, Content-Length 0, per spec.md §4.1.
func BuildAck(p ackParams) []byte {
	var b strings.Builder
	requestURI := fmt.Sprintf("sip:%s@%s", p.Callee, p.Server)

	fmt.Fprintf(&b, "ACK %s SIP/2.0%s", requestURI, crlf)
	fmt.Fprintf(&b, "Via: SIP/2.0/UDP %s:%d;branch=%s%s", p.LocalIP, p.LocalPort, p.Branch, crlf)
	fmt.Fprintf(&b, "Max-Forwards: 70%s", crlf)
	fmt.Fprintf(&b, "From: <sip:%s@%s>;tag=%s%s", p.CallerUser, p.Server, p.FromTag, crlf)
	fmt.Fprintf(&b, "To: <sip:%s@%s>;tag=%s%s", p.Callee, p.Server, p.ToTag, crlf)
	fmt.Fprintf(&b, "Call-ID: %s@%s%s", p.CallID, p.Server, crlf)
	fmt.Fprintf(&b, "CSeq: %d ACK%s", p.CSeq, crlf)
	fmt.Fprintf(&b, "Content-Length: 0%s", crlf)
	b.WriteString(crlf)
	return []byte(b.String())
}

// byeParams carries everything needed to render a BYE.
type byeParams struct {
	Callee, Server string
	LocalIP        string
	LocalPort      int
	Branch         string
	FromTag        string
	ToTag          string
	CallID         string
	CSeq           int
	CallerUser     string
}

// BuildBye renders the BYE request: CSeq = invite CSeq + 1, fresh branch,
// same dialog identifiers.
func BuildBye(p byeParams) []byte {
	var b strings.Builder
	requestURI := fmt.Sprintf("sip:%s@%s", p.Callee, p.Server)

	fmt.Fprintf(&b, "BYE %s SIP/2.0%s", requestURI, crlf)
	fmt.Fprintf(&b, "Via: SIP/2.0/UDP %s:%d;branch=%s%s", p.LocalIP, p.LocalPort, p.Branch, crlf)
	fmt.Fprintf(&b, "Max-Forwards: 70%s", crlf)
	fmt.Fprintf(&b, "From: <sip:%s@%s>;tag=%s%s", p.CallerUser, p.Server, p.FromTag, crlf)
	fmt.Fprintf(&b, "To: <sip:%s@%s>;tag=%s%s", p.Callee, p.Server, p.ToTag, crlf)
	fmt.Fprintf(&b, "Call-ID: %s@%s%s", p.CallID, p.Server, crlf)
	fmt.Fprintf(&b, "CSeq: %d BYE%s", p.CSeq, crlf)
	fmt.Fprintf(&b, "Content-Length: 0%s", crlf)
	b.WriteString(crlf)
	return []byte(b.String())
}

// Response is a parsed SIP response: status line plus case-insensitively
// accessible headers and the raw body. Extra headers are accepted and
// ignored per spec.md §6.
type Response struct {
	Code    int
	Reason  string
	Headers map[string][]string // canonical lower-case keys
	Body    []byte
}

// Header returns the first value for a header name, case-insensitively.
func (r *Response) Header(name string) string {
	vals := r.Headers[strings.ToLower(name)]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// ParseResponse parses a raw UDP datagram into a Response. It tolerates
// unknown headers and both CRLF and bare-LF line endings on receive, since
// §6 only mandates CRLF on send.
func ParseResponse(raw []byte) (*Response, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return nil, &ParseError{Context: "empty datagram"}
	}

	statusLine := lines[0]
	const prefix = "SIP/2.0 "
	if !strings.HasPrefix(statusLine, prefix) {
		return nil, &ParseError{Context: "status line", Line: statusLine}
	}
	rest := strings.TrimPrefix(statusLine, prefix)
	parts := strings.SplitN(rest, " ", 2)
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, &ParseError{Context: "status code", Line: statusLine, Cause: err}
	}
	reason := ""
	if len(parts) > 1 {
		reason = parts[1]
	}

	resp := &Response{Code: code, Reason: reason, Headers: map[string][]string{}}

	i := 1
	for ; i < len(lines); i++ {
		line := lines[i]
		if line == "" {
			i++
			break
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue // tolerate malformed extra headers rather than failing the whole parse
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		resp.Headers[key] = append(resp.Headers[key], val)
	}

	if i < len(lines) {
		resp.Body = []byte(strings.Join(lines[i:], "\n"))
	}

	return resp, nil
}

// ToTagFromHeader extracts the tag= parameter from a To header value, if
// present.
func ToTagFromHeader(to string) string {
	idx := strings.Index(to, "tag=")
	if idx < 0 {
		return ""
	}
	tag := to[idx+len("tag="):]
	if semi := strings.IndexByte(tag, ';'); semi >= 0 {
		tag = tag[:semi]
	}
	return strings.TrimSpace(tag)
}
