package sipdialog

import (
	"strings"

	"github.com/icholy/digest"
)

// ParseChallenge extracts realm/nonce from a WWW-Authenticate or
// Proxy-Authenticate header value. Returns ErrAuthChallenge if either is
// absent, per spec.md §4.1's digest table.
func ParseChallenge(header string) (*digest.Challenge, error) {
	header = strings.TrimSpace(header)
	chal, err := digest.ParseChallenge(header)
	if err != nil {
		return nil, &ParseError{Context: "auth challenge", Line: header, Cause: err}
	}
	if chal.Realm == "" || chal.Nonce == "" {
		return nil, ErrAuthChallenge
	}
	return chal, nil
}

// BuildAuthorization computes the RFC 2617 MD5/no-qop digest response for
// the given challenge and renders the Authorization header value, exactly
// as spec.md §4.6 defines (A1=user:realm:pass, A2=method:uri, no qop).
func BuildAuthorization(chal *digest.Challenge, username, password, method, uri string) (string, error) {
	cred, err := digest.Digest(chal, digest.Options{
		Method:   method,
		URI:      uri,
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", err
	}
	return cred.String(), nil
}
