package sipdialog

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// BuildOffer renders the SDP offer in the exact line order spec.md §4.1
// requires. pion/sdp's generic Marshal does not guarantee this bit-exact
// ordering, so the offer is composed directly; answer parsing below does
// use pion/sdp, since only the offer has an ordering requirement.
func BuildOffer(localIP string, localRTPPort int) string {
	lines := []string{
		"v=0",
		fmt.Sprintf("o=- 0 0 IN IP4 %s", localIP),
		"s=sipvoice",
		fmt.Sprintf("c=IN IP4 %s", localIP),
		"t=0 0",
		fmt.Sprintf("m=audio %d RTP/AVP 0 8 101", localRTPPort),
		"a=rtpmap:0 PCMU/8000",
		"a=rtpmap:8 PCMA/8000",
		"a=rtpmap:101 telephone-event/8000",
		"a=fmtp:101 0-16",
		"a=ptime:20",
		"a=sendrecv",
	}
	out := ""
	for _, l := range lines {
		out += l + crlf
	}
	return out
}

// AnswerMedia is what the dialog engine needs from an SDP answer.
type AnswerMedia struct {
	RemoteIP   string
	RemotePort int
	PayloadTypes []string
}

// ParseAnswer extracts the negotiated audio media line from an SDP answer
// body using pion/sdp's session description parser.
func ParseAnswer(body []byte) (*AnswerMedia, error) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return nil, &ParseError{Context: "sdp answer", Cause: err}
	}

	var audio *sdp.MediaDescription
	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media == "audio" {
			audio = md
			break
		}
	}
	if audio == nil {
		return nil, ErrNoAudioMedia
	}

	remoteIP := ""
	if audio.ConnectionInformation != nil && audio.ConnectionInformation.Address != nil {
		remoteIP = audio.ConnectionInformation.Address.Address
	} else if sd.ConnectionInformation != nil && sd.ConnectionInformation.Address != nil {
		remoteIP = sd.ConnectionInformation.Address.Address
	}

	return &AnswerMedia{
		RemoteIP:     remoteIP,
		RemotePort:   audio.MediaName.Port.Value,
		PayloadTypes: audio.MediaName.Formats,
	}, nil
}

// PortFromOffer re-parses an offer this endpoint built, for round-trip
// tests: it should yield back the same media port and payload type set.
func PortFromOffer(offer string) (port int, payloadTypes []string, err error) {
	answer, err := ParseAnswer([]byte(offer))
	if err != nil {
		return 0, nil, err
	}
	return answer.RemotePort, answer.PayloadTypes, nil
}
