// Package sipconfig resolves endpoint configuration from flags and
// environment variables.
package sipconfig

import (
	"flag"
	"net"
	"os"
	"strconv"
	"time"
)

// Config holds everything the call endpoint needs to place one call.
type Config struct {
	// Identity
	CallerNumber string
	LocalIP      string
	LocalSIPPort int

	// Remote
	ServerHost   string
	ServerPort   int
	CalleeNumber string

	// Auth (used only if the server challenges)
	AuthUser     string
	AuthPassword string

	// Media
	LocalRTPPort int // receiver's bound port; sender picks a port from LocalRTPPort+1000 to +2000
	UploadDir    string
	OutputWav    string

	MaxCallDuration time.Duration
	LogLevel        string

	// Control surface
	ControlListenAddr string
}

// Load resolves configuration from CLI flags, then environment variable
// overrides, mirroring the precedence the teacher's rtpmanager/signaling
// config loaders use.
func Load() *Config {
	cfg := &Config{
		MaxCallDuration: 120 * time.Second,
	}

	flag.StringVar(&cfg.CallerNumber, "caller", "1000", "caller number used in From/Contact")
	flag.StringVar(&cfg.LocalIP, "local-ip", "", "local IP advertised in SDP/Via (auto-detected if empty)")
	flag.IntVar(&cfg.LocalSIPPort, "sip-port", 5060, "local SIP signalling port")

	flag.StringVar(&cfg.ServerHost, "server", "127.0.0.1", "SIP server host")
	flag.IntVar(&cfg.ServerPort, "server-port", 5060, "SIP server port")
	flag.StringVar(&cfg.CalleeNumber, "callee", "", "number to dial")

	flag.StringVar(&cfg.AuthUser, "user", "", "digest auth username (defaults to caller)")
	flag.StringVar(&cfg.AuthPassword, "password", "", "digest auth password")

	flag.IntVar(&cfg.LocalRTPPort, "rtp-port", 40000, "local RTP receive port (sender uses a port from rtp-port+1000 to rtp-port+2000)")
	flag.StringVar(&cfg.UploadDir, "upload-dir", "./uploads", "directory for WAV_UPLOAD payloads")
	flag.StringVar(&cfg.OutputWav, "output-wav", "call.wav", "path for the recorded call audio")

	var maxSeconds int
	flag.IntVar(&maxSeconds, "max-seconds", 120, "maximum call duration in seconds")

	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.ControlListenAddr, "control-addr", ":8088", "WebSocket control surface listen address")

	flag.Parse()

	cfg.MaxCallDuration = time.Duration(maxSeconds) * time.Second

	applyEnvOverrides(cfg)

	if cfg.AuthUser == "" {
		cfg.AuthUser = cfg.CallerNumber
	}
	if cfg.LocalIP == "" {
		cfg.LocalIP = detectLocalIP()
	}

	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIPVOICE_SERVER"); v != "" {
		cfg.ServerHost = v
	}
	if v := os.Getenv("SIPVOICE_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ServerPort = p
		}
	}
	if v := os.Getenv("SIPVOICE_CALLEE"); v != "" {
		cfg.CalleeNumber = v
	}
	if v := os.Getenv("SIPVOICE_USER"); v != "" {
		cfg.AuthUser = v
	}
	if v := os.Getenv("SIPVOICE_PASSWORD"); v != "" {
		cfg.AuthPassword = v
	}
	if v := os.Getenv("SIPVOICE_LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SIPVOICE_CONTROL_ADDR"); v != "" {
		cfg.ControlListenAddr = v
	}
}

// detectLocalIP mirrors the teacher's getPrimaryInterfaceIP: pick the first
// non-loopback IPv4 address on an up interface, falling back to loopback.
func detectLocalIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}
