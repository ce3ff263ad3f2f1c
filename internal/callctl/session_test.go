package callctl

import (
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestHangupWithoutCallIsError(t *testing.T) {
	o := NewOrchestrator(Config{MaxCallDuration: time.Minute})
	if err := o.Hangup(); err != ErrNoActiveCall {
		t.Fatalf("err = %v, want ErrNoActiveCall", err)
	}
}

func TestPlayWavWithoutCallIsError(t *testing.T) {
	o := NewOrchestrator(Config{MaxCallDuration: time.Minute})
	if err := o.PlayWav("whatever.wav"); err != ErrNoActiveCall {
		t.Fatalf("err = %v, want ErrNoActiveCall", err)
	}
}

func TestCallEstablishesAndHangsUp(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()
	serverAddr := server.LocalAddr().(*net.UDPAddr)

	rtpPort := freeUDPPort(t)
	sipPort := freeUDPPort(t)
	sendMin := freeUDPPort(t)

	cfg := Config{
		CallerNumber:     "1000",
		LocalIP:          "127.0.0.1",
		LocalSIPPort:     sipPort,
		ServerHost:       "127.0.0.1",
		ServerPort:       serverAddr.Port,
		AuthUser:         "1000",
		AuthPassword:     "secret",
		LocalRTPPort:     rtpPort,
		SendPortRangeMin: sendMin,
		SendPortRangeMax: sendMin + 10,
		OutputWav:        filepath.Join(t.TempDir(), "call.wav"),
		MaxCallDuration:  time.Minute,
	}
	o := NewOrchestrator(cfg)

	callErr := make(chan error, 1)
	go func() { callErr <- o.Call("bob") }()

	buf := make([]byte, 65536)
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, addr, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("server did not see INVITE: %v", err)
	}
	_ = n

	okResp := "SIP/2.0 200 OK\r\n" +
		"To: <sip:bob@127.0.0.1>;tag=totag1\r\n" +
		"Call-ID: whatever\r\n" +
		"CSeq: 102 INVITE\r\n" +
		"Content-Type: application/sdp\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n" +
		"v=0\r\n" +
		"o=- 1 1 IN IP4 127.0.0.1\r\n" +
		"s=asterisk\r\n" +
		"c=IN IP4 127.0.0.1\r\n" +
		"t=0 0\r\n" +
		"m=audio " + strconv.Itoa(freeUDPPort(t)) + " RTP/AVP 0\r\n" +
		"a=rtpmap:0 PCMU/8000\r\n"
	if _, err := server.WriteToUDP([]byte(okResp), addr); err != nil {
		t.Fatal(err)
	}

	if err := <-callErr; err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if o.State() != StateEstablished {
		t.Fatalf("state = %v, want Established", o.State())
	}

	if err := o.Call("bob"); err != ErrCallAlreadyActive {
		t.Fatalf("second Call() err = %v, want ErrCallAlreadyActive", err)
	}

	// drain the ACK so it doesn't linger on the fake server's socket.
	_ = server.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _, _ = server.ReadFromUDP(buf)

	if err := o.Hangup(); err != nil {
		t.Fatalf("Hangup() = %v", err)
	}
	if o.State() != StateIdle {
		t.Fatalf("state after hangup = %v, want Idle", o.State())
	}
}

// TestCallSurfacesRingingAndAuthenticatingProgress drives a 180 Ringing,
// then a 401 challenge, then a 200 OK through Call and checks the
// orchestrator actually surfaces the mid-transaction progress: an
// EventRinging on the event channel, and a StateAuthenticating window
// during the reauthenticated retry (spec.md §4.3's Dialing -> Authenticating
// transition and the Ringing CallEvent variant).
func TestCallSurfacesRingingAndAuthenticatingProgress(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()
	serverAddr := server.LocalAddr().(*net.UDPAddr)

	rtpPort := freeUDPPort(t)
	sipPort := freeUDPPort(t)
	sendMin := freeUDPPort(t)

	cfg := Config{
		CallerNumber:     "1000",
		LocalIP:          "127.0.0.1",
		LocalSIPPort:     sipPort,
		ServerHost:       "127.0.0.1",
		ServerPort:       serverAddr.Port,
		AuthUser:         "1000",
		AuthPassword:     "secret",
		LocalRTPPort:     rtpPort,
		SendPortRangeMin: sendMin,
		SendPortRangeMax: sendMin + 10,
		OutputWav:        filepath.Join(t.TempDir(), "call.wav"),
		MaxCallDuration:  time.Minute,
	}
	o := NewOrchestrator(cfg)

	callErr := make(chan error, 1)
	go func() { callErr <- o.Call("bob") }()

	buf := make([]byte, 65536)
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, addr, err := server.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("server did not see INVITE: %v", err)
	}

	ringing := "SIP/2.0 180 Ringing\r\n" +
		"To: <sip:bob@127.0.0.1>;tag=totag1\r\n" +
		"Call-ID: whatever\r\n" +
		"CSeq: 102 INVITE\r\n" +
		"Content-Length: 0\r\n\r\n"
	if _, err := server.WriteToUDP([]byte(ringing), addr); err != nil {
		t.Fatal(err)
	}

	sawRinging := false
	deadlineRinging := time.Now().Add(2 * time.Second)
	for !sawRinging && time.Now().Before(deadlineRinging) {
		select {
		case ev := <-o.Events():
			if ev.Kind == EventRinging {
				sawRinging = true
			}
		case <-time.After(100 * time.Millisecond):
		}
	}
	if !sawRinging {
		t.Fatal("timed out waiting for EventRinging")
	}

	challenge := "SIP/2.0 401 Unauthorized\r\n" +
		"To: <sip:bob@127.0.0.1>;tag=totag1\r\n" +
		"Call-ID: whatever\r\n" +
		"CSeq: 102 INVITE\r\n" +
		`WWW-Authenticate: Digest realm="asterisk", nonce="dcd98b7102dd2f0e"` + "\r\n" +
		"Content-Length: 0\r\n\r\n"
	if _, err := server.WriteToUDP([]byte(challenge), addr); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var sawAuthenticating bool
	for time.Now().Before(deadline) {
		if o.State() == StateAuthenticating {
			sawAuthenticating = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !sawAuthenticating {
		t.Fatal("orchestrator never reached StateAuthenticating during the 401 retry")
	}

	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := server.ReadFromUDP(buf); err != nil {
		t.Fatalf("server did not see authenticated retry: %v", err)
	}

	okResp := "SIP/2.0 200 OK\r\n" +
		"To: <sip:bob@127.0.0.1>;tag=totag1\r\n" +
		"Call-ID: whatever\r\n" +
		"CSeq: 102 INVITE\r\n" +
		"Content-Type: application/sdp\r\n" +
		"Content-Length: 0\r\n" +
		"\r\n" +
		"v=0\r\n" +
		"o=- 1 1 IN IP4 127.0.0.1\r\n" +
		"s=asterisk\r\n" +
		"c=IN IP4 127.0.0.1\r\n" +
		"t=0 0\r\n" +
		"m=audio " + strconv.Itoa(freeUDPPort(t)) + " RTP/AVP 0\r\n" +
		"a=rtpmap:0 PCMU/8000\r\n"
	if _, err := server.WriteToUDP([]byte(okResp), addr); err != nil {
		t.Fatal(err)
	}

	if err := <-callErr; err != nil {
		t.Fatalf("Call() = %v", err)
	}
	if o.State() != StateEstablished {
		t.Fatalf("state = %v, want Established", o.State())
	}

	_ = server.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _, _ = server.ReadFromUDP(buf)
	if err := o.Hangup(); err != nil {
		t.Fatalf("Hangup() = %v", err)
	}
}
