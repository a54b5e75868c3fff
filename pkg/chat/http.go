package chat

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

// poster sends JSON requests with retry on 429 and 5xx.
type poster struct {
	provider string
	client   *http.Client
	config   *Config
	logger   *slog.Logger
}

// postJSON marshals payload, posts it to url and decodes a 200 response into
// out. Other statuses become *APIError.
func (p *poster) postJSON(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return WrapError(p.provider, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := p.doWithRetry(ctx, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p.parseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapError(p.provider, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// doWithRetry performs the request with retry logic.
func (p *poster) doWithRetry(ctx context.Context, url string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, WrapError(p.provider, fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if p.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(p.provider, err)
			p.logger.Warn("request failed, retrying",
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = p.parseError(resp)
			resp.Body.Close()
			p.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (p *poster) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	// OpenAI-style {"error": {...}} or the remote contract's {"error": "..."}
	var errResp struct {
		Error json.RawMessage `json:"error"`
	}
	var detail struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}

	message := string(body)
	code := ""
	if json.Unmarshal(body, &errResp) == nil && len(errResp.Error) > 0 {
		var s string
		switch {
		case json.Unmarshal(errResp.Error, &detail) == nil && detail.Message != "":
			message, code = detail.Message, detail.Code
		case json.Unmarshal(errResp.Error, &s) == nil && s != "":
			message = s
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   p.provider,
	}
}
