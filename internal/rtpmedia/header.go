package rtpmedia

import "github.com/pion/rtp"

// PayloadTypePCMU is the only payload type this endpoint sends or expects
// to receive (spec.md §4 Non-goals: no codec negotiation beyond PCMU).
const PayloadTypePCMU = 0

// HeaderSize is the fixed RTP header length this endpoint produces and
// assumes on receive: no CSRC list, no extension (spec.md §3 RtpHeader).
const HeaderSize = 12

// BuildPacket marshals a PCMU RTP packet with the given sequence,
// timestamp and SSRC, wrapping github.com/pion/rtp for the wire encoding.
func BuildPacket(seq uint16, timestamp, ssrc uint32, payload []byte) ([]byte, error) {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    PayloadTypePCMU,
			SequenceNumber: seq,
			Timestamp:      timestamp,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	return pkt.Marshal()
}

// ParsePacket splits a received datagram into its fixed header and
// payload. It does not validate the version/padding/extension bits beyond
// what pion/rtp's Unmarshal enforces, since the receiver treats the first
// 12 bytes as header and the remainder as payload regardless (spec.md
// §4.2.1).
func ParsePacket(datagram []byte) (hdr rtp.Header, payload []byte, err error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(datagram); err != nil {
		return rtp.Header{}, nil, err
	}
	return pkt.Header, pkt.Payload, nil
}
