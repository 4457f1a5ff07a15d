package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/livekit-voice-agent/internal/logging"
)

// Client requests speech synthesis. The service does not return audio
// in the response body; it writes a WAV into a directory shared with
// this process and replies with the filename.
type Client struct {
	url       string
	language  string
	sharedDir string
	http      *http.Client
}

type synthesizeRequest struct {
	Text           string `json:"text"`
	Language       string `json:"language"`
	OutputFilename string `json:"output_filename"`
}

type synthesizeResponse struct {
	Filename string `json:"filename"`
}

// NewClient builds a synthesis client. sharedDir is where the service
// materializes output files.
func NewClient(url, language, sharedDir string, timeout time.Duration) *Client {
	return &Client{
		url:       url,
		language:  language,
		sharedDir: sharedDir,
		http:      &http.Client{Timeout: timeout},
	}
}

// Synthesize asks the service to render text into outputFilename and
// returns the absolute path of the produced WAV. The file's existence
// is verified before returning; a 200 with no file is still a failure.
func (c *Client) Synthesize(ctx context.Context, text, outputFilename, correlationID string) (string, error) {
	payload, err := json.Marshal(synthesizeRequest{
		Text:           text,
		Language:       c.language,
		OutputFilename: outputFilename,
	})
	if err != nil {
		return "", fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("synthesis service returned %d: %s", resp.StatusCode, string(b))
	}

	var out synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode synthesis response: %w", err)
	}
	name := out.Filename
	if name == "" {
		name = outputFilename
	}

	path := filepath.Join(c.sharedDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("synthesis output missing at %s: %w", path, err)
	}

	logging.Infow("synthesis complete",
		"correlation_id", correlationID,
		"latency_ms", time.Since(start).Milliseconds(),
		"file", path,
		"bytes", info.Size(),
	)
	return path, nil
}
