package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-voiceturn/internal/log"
	"github.com/teslashibe/go-voiceturn/pkg/metrics"
	"github.com/teslashibe/go-voiceturn/pkg/stt"
	"github.com/teslashibe/go-voiceturn/pkg/web"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve voice sessions over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Address = addr
			}
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides server.address)")
	return cmd
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.Component("serve")
	m := metrics.New(prometheus.DefaultRegisterer)

	p, err := buildPipeline(ctx, cfg, m, log.L())
	if err != nil {
		return err
	}

	opts := []web.Option{
		web.WithAddress(cfg.Server.Address),
		web.WithAllowOrigins(cfg.Server.AllowOrigins),
		web.WithMaxSessions(cfg.Server.MaxSessions),
		web.WithIdleTimeout(cfg.Server.IdleTimeout),
		web.WithPlaybackWait(cfg.Server.PlaybackWait),
		web.WithLogger(log.L()),
		web.WithMetrics(p.metrics, prometheus.DefaultGatherer),
	}

	// The proxies keep the original single-provider contract: NIM for
	// /api/asr and ElevenLabs for /api/tts.
	if asr, err := stt.NewNIM(
		stt.WithAPIKey(cfg.STT.NIM.APIKey),
		stt.WithBaseURL(cfg.STT.NIM.BaseURL),
		stt.WithModel(cfg.STT.NIM.Model),
		stt.WithLanguage(cfg.STT.Language),
		stt.WithLogger(log.L()),
	); err == nil {
		opts = append(opts, web.WithASR(asr))
		defer asr.Close()
	} else {
		logger.Warn("/api/asr disabled", "error", err)
	}
	if speech, err := newElevenLabs(cfg.TTS, log.L()); err == nil {
		opts = append(opts, web.WithSpeech(speech))
		defer speech.Close()
	} else {
		logger.Warn("/api/tts disabled", "error", err)
	}

	srv, err := web.NewServer(p.providers, opts...)
	if err != nil {
		return err
	}
	defer srv.Close()

	logger.Info("starting",
		"address", cfg.Server.Address,
		"stt", len(p.providers.STT),
		"tts", len(p.providers.TTS),
		"chat", cfg.Chat.Backend,
	)
	return srv.Start(ctx)
}
