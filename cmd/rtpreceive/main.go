// Command rtpreceive is the receive-only CLI utility (spec.md §6): it
// places one call, records the received audio to a WAV file, and exits —
// no control surface, no WAV playback.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sebas/sipvoice/internal/banner"
	"github.com/sebas/sipvoice/internal/callctl"
	"github.com/sebas/sipvoice/internal/obslog"
	"github.com/sebas/sipvoice/internal/sipconfig"
)

const (
	defaultOutputWav   = "call.wav"
	defaultMaxDuration = 120
)

func main() {
	os.Exit(run())
}

func run() int {
	callee := os.Getenv("SIPVOICE_CALLEE")
	outputWav := defaultOutputWav
	maxSeconds := defaultMaxDuration

	args := os.Args[1:]
	if len(args) >= 1 {
		callee = args[0]
	}
	if len(args) >= 2 {
		outputWav = args[1]
	}
	if len(args) >= 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "rtpreceive: invalid max-seconds %q: %v\n", args[2], err)
			return 1
		}
		maxSeconds = n
	}
	if callee == "" {
		fmt.Fprintln(os.Stderr, "rtpreceive: usage: rtpreceive [callee] [output-wav] [max-seconds]")
		return 1
	}

	cfg := sipconfig.Load()
	cfg.CalleeNumber = callee
	cfg.OutputWav = outputWav
	cfg.MaxCallDuration = time.Duration(maxSeconds) * time.Second

	obslog.Init(os.Stdout)
	obslog.SetLevel(cfg.LogLevel)

	banner.Print("RTP RECEIVE", []banner.ConfigLine{
		{Label: "Caller", Value: cfg.CallerNumber},
		{Label: "Callee", Value: cfg.CalleeNumber},
		{Label: "Server", Value: fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)},
		{Label: "Output WAV", Value: cfg.OutputWav},
		{Label: "Max Duration", Value: cfg.MaxCallDuration.String()},
	})

	orch := callctl.NewOrchestrator(callctl.Config{
		CallerNumber:     cfg.CallerNumber,
		LocalIP:          cfg.LocalIP,
		LocalSIPPort:     cfg.LocalSIPPort,
		ServerHost:       cfg.ServerHost,
		ServerPort:       cfg.ServerPort,
		AuthUser:         cfg.AuthUser,
		AuthPassword:     cfg.AuthPassword,
		LocalRTPPort:     cfg.LocalRTPPort,
		SendPortRangeMin: cfg.LocalRTPPort + 1000,
		SendPortRangeMax: cfg.LocalRTPPort + 2000,
		OutputWav:        cfg.OutputWav,
		MaxCallDuration:  cfg.MaxCallDuration,
	})

	if err := orch.Call(cfg.CalleeNumber); err != nil {
		slog.Error("Call failed", "error", err)
		return 1
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, hanging up", "signal", sig)
	case <-time.After(cfg.MaxCallDuration + time.Second):
		slog.Info("Max call duration elapsed")
	}

	if orch.State() == callctl.StateEstablished {
		if err := orch.Hangup(); err != nil {
			slog.Warn("Hangup failed", "error", err)
		}
	}

	stats := orch.Stats()
	slog.Info("Call finished", "packets", stats.Packets, "bytes", stats.Bytes, "lost", stats.Lost)
	return 0
}
