package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// jsonRequest describes one JSON POST a provider makes.
type jsonRequest struct {
	provider string
	url      string
	headers  map[string]string
	payload  any
}

// postAudio sends req, retrying rate-limited and 5xx responses, and returns
// the response body. Non-200 responses are turned into errors by parse.
func postAudio(ctx context.Context, client *http.Client, cfg *Config, logger *slog.Logger,
	req jsonRequest, parse func(*http.Response) error) ([]byte, error) {
	body, err := json.Marshal(req.payload)
	if err != nil {
		return nil, WrapError(req.provider, fmt.Errorf("marshal payload: %w", err))
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(req.provider, fmt.Errorf("create request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		for k, v := range req.headers {
			httpReq.Header.Set(k, v)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			// Network errors go straight to the chain, which owns fallback.
			return nil, WrapError(req.provider, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = parse(resp)
			resp.Body.Close()
			logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			err := parse(resp)
			resp.Body.Close()
			return nil, err
		}

		audio, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, WrapError(req.provider, fmt.Errorf("read response: %w", err))
		}
		if len(audio) == 0 {
			return nil, WrapError(req.provider, fmt.Errorf("%w: empty audio", ErrProviderFailed))
		}
		return audio, nil
	}

	return nil, lastErr
}

// mp3Duration estimates playback time of constant-bitrate MP3.
func mp3Duration(n, kbps int) time.Duration {
	if kbps <= 0 {
		return 0
	}
	return time.Duration(float64(n*8) / float64(kbps*1000) * float64(time.Second))
}
