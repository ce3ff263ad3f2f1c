package rtpmedia

import (
	"bytes"
	"net"
	"testing"
	"time"
)

// TestSenderPacketizationScenario3 mirrors the seeded scenario: 480 bytes
// of source payload yields 3 packets of 160 bytes with sequences 0/1/2
// and timestamps 0/160/320.
func TestSenderPacketizationScenario3(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	remoteAddr := listener.LocalAddr().(*net.UDPAddr)

	sender, err := NewSender(0, "127.0.0.1", remoteAddr.Port, 99)
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Stop()

	src := bytes.NewReader(make([]byte, 480))
	done := make(chan error, 1)
	go func() { done <- sender.Stream(src) }()

	wantTimestamps := []uint32{0, 160, 320}
	buf := make([]byte, 2048)
	for i, wantTS := range wantTimestamps {
		_ = listener.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := listener.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		hdr, payload, err := ParsePacket(buf[:n])
		if err != nil {
			t.Fatalf("packet %d parse: %v", i, err)
		}
		if len(payload) != frameSize {
			t.Fatalf("packet %d payload len = %d, want %d", i, len(payload), frameSize)
		}
		if hdr.SequenceNumber != uint16(i) {
			t.Fatalf("packet %d seq = %d, want %d", i, hdr.SequenceNumber, i)
		}
		if hdr.Timestamp != wantTS {
			t.Fatalf("packet %d timestamp = %d, want %d", i, hdr.Timestamp, wantTS)
		}
		if hdr.PayloadType != PayloadTypePCMU {
			t.Fatalf("packet %d payload type = %d, want 0", i, hdr.PayloadType)
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("Stream() = %v", err)
	}
}
