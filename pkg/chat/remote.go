package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceturn/internal/httpc"
)

const providerRemote = "remote"

// Remote is a Client for an endpoint speaking the {message, history} to
// {response} contract, such as another voiceturn server's /api/chat.
type Remote struct {
	url    string
	config *Config
	poster *poster
	logger *slog.Logger
}

// NewRemote creates a client posting to url.
func NewRemote(url string, opts ...Option) (*Remote, error) {
	if url == "" {
		return nil, ErrNoURL
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)

	logger := cfg.Logger.With("component", "chat.remote")
	return &Remote{
		url:    url,
		config: cfg,
		poster: &poster{
			provider: providerRemote,
			client:   httpc.NewClient(cfg.Timeout),
			config:   cfg,
			logger:   logger,
		},
		logger: logger,
	}, nil
}

type remoteResponse struct {
	Response string `json:"response"`
}

// Reply posts the message and the most recent history.
func (r *Remote) Reply(ctx context.Context, req *Request) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	start := time.Now()
	payload := Request{
		Message: req.Message,
		History: Recent(req.History, r.config.HistoryWindow),
	}

	var result remoteResponse
	if err := r.poster.postJSON(ctx, r.url, payload, &result); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(result.Response)
	if text == "" {
		return nil, WrapError(providerRemote, ErrEmptyReply)
	}

	latency := time.Since(start).Milliseconds()
	r.logger.Debug("reply", "chars", len(text), "latency_ms", latency)
	return &Reply{Text: text, LatencyMs: latency}, nil
}

// Close releases resources.
func (r *Remote) Close() error {
	r.poster.client.CloseIdleConnections()
	return nil
}

var _ Client = (*Remote)(nil)
