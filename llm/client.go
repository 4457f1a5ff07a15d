// Package llm talks to a local Ollama instance for reply generation.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/livekit-voice-agent/internal/logging"
)

// ErrTransient marks failures worth retrying (network, 5xx).
var ErrTransient = errors.New("transient llm error")

// ErrPermanent marks failures that will not succeed on retry (4xx,
// malformed responses).
var ErrPermanent = errors.New("permanent llm error")

// Client calls the Ollama generate endpoint with streaming disabled.
type Client struct {
	url   string
	model string
	http  *http.Client
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// NewClient builds a generation client for the given endpoint and model.
func NewClient(url, model string, timeout time.Duration) *Client {
	return &Client{
		url:   url,
		model: model,
		http:  &http.Client{Timeout: timeout},
	}
}

// Generate produces a reply for the prompt. The returned text is
// whitespace-trimmed.
func (c *Client) Generate(ctx context.Context, prompt, correlationID string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrPermanent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d: %s", ErrPermanent, resp.StatusCode, string(b))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrPermanent, err)
	}

	reply := strings.TrimSpace(out.Response)
	logging.Infow("llm generation complete",
		"correlation_id", correlationID,
		"model", c.model,
		"latency_ms", time.Since(start).Milliseconds(),
		"prompt_chars", len(prompt),
		"reply_chars", len(reply),
	)
	return reply, nil
}
