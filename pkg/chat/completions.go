package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-voiceturn/internal/httpc"
)

const providerCompletions = "completions"

// Completions is a Client for any OpenAI-compatible chat completions API
// (NVIDIA NIM, OpenAI, Ollama, vLLM and so on).
type Completions struct {
	baseURL string
	config  *Config
	poster  *poster
	logger  *slog.Logger
}

// NewCompletions creates a completions client. A missing API key is not an
// error here: Reply reports ErrNoAPIKey so callers can answer in character.
func NewCompletions(opts ...Option) (*Completions, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	logger := cfg.Logger.With("component", "chat.completions")
	return &Completions{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		poster: &poster{
			provider: providerCompletions,
			client:   httpc.NewClient(cfg.Timeout),
			config:   cfg,
			logger:   logger,
		},
		logger: logger,
	}, nil
}

// Reply sends the system prompt, the most recent history and the new
// message to /chat/completions.
func (c *Completions) Reply(ctx context.Context, req *Request) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if c.config.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	start := time.Now()

	var result chatCompletionResponse
	if err := c.poster.postJSON(ctx, c.baseURL+"/chat/completions", c.buildPayload(req), &result); err != nil {
		return nil, err
	}

	var text string
	if len(result.Choices) > 0 {
		text = strings.TrimSpace(result.Choices[0].Message.Content)
	}
	if text == "" {
		return nil, WrapError(providerCompletions, ErrEmptyReply)
	}

	latency := time.Since(start).Milliseconds()
	c.logger.Debug("reply",
		"model", result.Model,
		"chars", len(text),
		"history", len(req.History),
		"latency_ms", latency,
	)

	return &Reply{Text: text, Model: result.Model, LatencyMs: latency}, nil
}

// buildPayload constructs the API request payload.
func (c *Completions) buildPayload(req *Request) map[string]any {
	history := Recent(req.History, c.config.HistoryWindow)

	messages := make([]Message, 0, len(history)+2)
	if c.config.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: c.config.SystemPrompt})
	}
	messages = append(messages, history...)
	messages = append(messages, NewUserMessage(req.Message))

	payload := map[string]any{
		"model":    c.config.Model,
		"messages": messages,
	}
	if c.config.MaxTokens > 0 {
		payload["max_tokens"] = c.config.MaxTokens
	}
	if c.config.Temperature > 0 {
		payload["temperature"] = c.config.Temperature
	}
	if c.config.TopP > 0 {
		payload["top_p"] = c.config.TopP
	}
	return payload
}

// Close releases resources.
func (c *Completions) Close() error {
	c.poster.client.CloseIdleConnections()
	return nil
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Completions) String() string {
	return fmt.Sprintf("completions(%s %s)", c.baseURL, c.config.Model)
}

// Verify Completions implements Client at compile time.
var _ Client = (*Completions)(nil)
