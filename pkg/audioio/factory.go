package audioio

import (
	"fmt"
	"log/slog"
)

// NewCapturer creates a capturer with the given configuration.
// If cfg.Backend is BackendAuto, ffmpeg is used.
func NewCapturer(cfg Config, logger *slog.Logger) (Capturer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendFFmpeg
	}

	logger.Info("creating audio capturer",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"encoding", cfg.Encoding,
	)

	switch backend {
	case BackendMock:
		return NewMockCapturer(&Recording{
			Data:     EncodeWAV(make([]byte, cfg.BytesPerSecond()), cfg.SampleRate, cfg.Channels),
			MIMEType: "audio/wav",
		}), nil
	case BackendFFmpeg:
		return NewFFmpegCapture(cfg, logger), nil
	case BackendStream:
		return NewStreamCapture(logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewPlayer creates a player. BackendMock yields a MockPlayer; every other
// backend plays through cfg.PlayerCommand.
func NewPlayer(cfg Config, logger *slog.Logger) Player {
	if cfg.Backend == BackendMock {
		return NewMockPlayer()
	}
	return NewExecPlayer(cfg.PlayerCommand, logger)
}

// AvailableBackends returns the capture backends.
func AvailableBackends() []Backend {
	return []Backend{BackendFFmpeg, BackendStream, BackendMock}
}
