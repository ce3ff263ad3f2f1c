package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebas/sipvoice/internal/banner"
	"github.com/sebas/sipvoice/internal/callctl"
	"github.com/sebas/sipvoice/internal/controlws"
	"github.com/sebas/sipvoice/internal/obslog"
	"github.com/sebas/sipvoice/internal/sipconfig"
)

func main() {
	cfg := sipconfig.Load()

	obslog.Init(os.Stdout)
	obslog.SetLevel(cfg.LogLevel)

	banner.Print("SIP VOICE ENDPOINT", []banner.ConfigLine{
		{Label: "Caller", Value: cfg.CallerNumber},
		{Label: "Server", Value: fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)},
		{Label: "Local SIP", Value: fmt.Sprintf("%s:%d", cfg.LocalIP, cfg.LocalSIPPort)},
		{Label: "RTP Port", Value: fmt.Sprintf("%d", cfg.LocalRTPPort)},
		{Label: "Output WAV", Value: cfg.OutputWav},
		{Label: "Upload Dir", Value: cfg.UploadDir},
		{Label: "Control Addr", Value: cfg.ControlListenAddr},
		{Label: "Max Duration", Value: cfg.MaxCallDuration.String()},
		{Label: "Log Level", Value: cfg.LogLevel},
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

	go logEvents(orch)

	ctl := controlws.NewServer(orch, cfg.UploadDir)
	ln, err := net.Listen("tcp", cfg.ControlListenAddr)
	if err != nil {
		slog.Error("Failed to listen", "address", cfg.ControlListenAddr, "error", err)
		os.Exit(1)
	}

	slog.Info("Control surface listening", "address", cfg.ControlListenAddr)
	go func() {
		if err := ctl.Serve(ln); err != nil {
			slog.Info("Control surface stopped", "error", err)
		}
	}()

	if cfg.CalleeNumber != "" {
		go func() {
			slog.Info("Placing call", "callee", cfg.CalleeNumber)
			if err := orch.Call(cfg.CalleeNumber); err != nil {
				slog.Error("Call failed", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)

	ctl.Close()
	ln.Close()
	if orch.State() == callctl.StateEstablished {
		if err := orch.Hangup(); err != nil {
			slog.Warn("Hangup during shutdown failed", "error", err)
		}
	}
	slog.Info("SIP voice endpoint stopped")
}

func logEvents(orch *callctl.Orchestrator) {
	for ev := range orch.Events() {
		if ev.Reason != "" {
			slog.Info("[CallCtl] "+string(ev.Kind), "reason", ev.Reason)
		} else {
			slog.Info("[CallCtl] " + string(ev.Kind))
		}
	}
}
