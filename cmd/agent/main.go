package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/livekit-voice-agent/internal/config"
	"github.com/livekit-voice-agent/internal/logging"
	"github.com/livekit-voice-agent/internal/voice"
)

func main() {
	logging.Init()
	defer logging.Sync()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Fatalw("invalid configuration", "error", err)
	}

	logging.Infow("starting voice agent",
		"room", cfg.RoomName,
		"identity", cfg.AgentIdentity,
		"language", cfg.Language,
		"vad_level", cfg.VADLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agent := voice.NewAgent(cfg)
	if err := agent.Start(ctx); err != nil {
		logging.Fatalw("agent startup failed", "error", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logging.Infow("shutting down", "signal", s.String())

	agent.Stop()
}
