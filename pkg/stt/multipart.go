package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/teslashibe/go-voiceturn/pkg/audioio"
)

// formField is one text part of a transcription upload. Repeated keys are
// allowed ("include[]").
type formField struct {
	Key   string
	Value string
}

// uploadRecording posts rec as the "file" part of a multipart form.
func uploadRecording(ctx context.Context, client *http.Client, url, apiKey string, rec *audioio.Recording, fields []formField) (*http.Response, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		if err := w.WriteField(f.Key, f.Value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f.Key, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, rec.Filename()))
	h.Set("Content-Type", audioio.BaseMIMEType(rec.MIMEType))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(rec.Data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	return client.Do(req)
}

// parseError reads and parses an OpenAI-style error response.
func parseError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
		Detail string `json:"detail"`
	}

	message := string(bytes.TrimSpace(body))
	code := ""
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Error.Message != "":
			message = errResp.Error.Message
			code = errResp.Error.Code
		case errResp.Detail != "":
			message = errResp.Detail
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   provider,
	}
}
