package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/livekit-voice-agent/internal/logging"
)

const (
	// maxMessageBytes is the room data message ceiling. Payloads over
	// it get their audio truncated rather than chunked.
	maxMessageBytes = 1_000_000
	// truncatedAudioChars is how much base64 audio survives truncation.
	truncatedAudioChars = 500_000

	dataTopic    = "agent-messages"
	dataAttempts = 2
)

// Message is the observer-facing record of one turn.
type Message struct {
	Type        string `json:"type"`
	Transcript  string `json:"transcript"`
	ReplyText   string `json:"replyText"`
	AudioBase64 string `json:"audio_base64"`
	Timestamp   string `json:"timestamp"`
}

// DataPublisher publishes reliable out-of-band data to the room. The
// room agent backs it with the LiveKit local participant; tests use a
// recorder.
type DataPublisher interface {
	PublishReliable(ctx context.Context, payload []byte, topic string) error
}

// Notifier delivers turn messages to the web observer: one HTTP POST,
// then on failure up to two reliable room data attempts. Total failure
// is logged and swallowed; the reply was already spoken into the room.
type Notifier struct {
	webURL    string
	roomName  string
	http      *http.Client
	publisher DataPublisher

	dataTimeout time.Duration
	retryPause  time.Duration
}

// NewNotifier builds a notifier. webURL may be empty, in which case
// the HTTP transport is skipped and delivery goes straight to the
// data fallback.
func NewNotifier(webURL, roomName string, httpTimeout, dataTimeout time.Duration, publisher DataPublisher) *Notifier {
	return &Notifier{
		webURL:      webURL,
		roomName:    roomName,
		http:        &http.Client{Timeout: httpTimeout},
		publisher:   publisher,
		dataTimeout: dataTimeout,
		retryPause:  time.Second,
	}
}

// Send packages the turn and delivers it. Never returns an error:
// delivery is best-effort by contract.
func (n *Notifier) Send(ctx context.Context, transcript, replyText, audioPath, correlationID string) {
	audioB64 := ""
	if audioPath != "" {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			logging.Warnw("notification audio unreadable, sending text only",
				"correlation_id", correlationID, "file", audioPath, "error", err)
		} else {
			audioB64 = base64.StdEncoding.EncodeToString(data)
		}
	}

	msg := Message{
		Type:        "agent_response",
		Transcript:  transcript,
		ReplyText:   replyText,
		AudioBase64: audioB64,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	payload, truncated, err := marshalWithLimit(&msg)
	if err != nil {
		logging.Errorw("notification marshal failed", "correlation_id", correlationID, "error", err)
		return
	}
	if truncated {
		logging.Warnw("notification audio truncated to fit size ceiling",
			"correlation_id", correlationID, "bytes", len(payload))
	}

	if n.webURL != "" {
		if err := n.sendHTTP(ctx, &msg, correlationID); err == nil {
			return
		} else {
			logging.Warnw("http notification failed, falling back to room data",
				"correlation_id", correlationID, "error", err)
		}
	}

	if n.publisher == nil {
		logging.Errorw("notification undeliverable: no data publisher", "correlation_id", correlationID)
		return
	}
	for attempt := 1; attempt <= dataAttempts; attempt++ {
		err := n.publishBounded(ctx, payload)
		if err == nil {
			logging.Infow("notification delivered via room data",
				"correlation_id", correlationID, "attempt", attempt, "bytes", len(payload))
			return
		}
		logging.Warnw("room data notification attempt failed",
			"correlation_id", correlationID, "attempt", attempt, "error", err)
		if attempt < dataAttempts {
			select {
			case <-time.After(n.retryPause):
			case <-ctx.Done():
				return
			}
		}
	}
	logging.Errorw("notification delivery failed on every transport", "correlation_id", correlationID)
}

// publishBounded runs one data publish attempt with a hard deadline.
// The publisher call itself may not honor contexts (the SDK publish
// has no context parameter), so the attempt is abandoned rather than
// cancelled when the deadline passes.
func (n *Notifier) publishBounded(ctx context.Context, payload []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, n.dataTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.publisher.PublishReliable(attemptCtx, payload, dataTopic)
	}()
	select {
	case err := <-errCh:
		return err
	case <-attemptCtx.Done():
		return fmt.Errorf("data publish attempt: %w", attemptCtx.Err())
	}
}

// marshalWithLimit marshals the message, truncating its audio field if
// the encoded payload exceeds the room data ceiling. Truncation
// mutates msg so the HTTP transport carries the same trimmed audio.
func marshalWithLimit(msg *Message) (payload []byte, truncated bool, err error) {
	payload, err = json.Marshal(msg)
	if err != nil {
		return nil, false, err
	}
	if len(payload) <= maxMessageBytes {
		return payload, false, nil
	}
	if len(msg.AudioBase64) > truncatedAudioChars {
		msg.AudioBase64 = msg.AudioBase64[:truncatedAudioChars]
	}
	payload, err = json.Marshal(msg)
	if err != nil {
		return nil, true, err
	}
	return payload, true, nil
}

type webEnvelope struct {
	RoomName string   `json:"roomName"`
	Message  *Message `json:"message"`
}

func (n *Notifier) sendHTTP(ctx context.Context, msg *Message, correlationID string) error {
	body, err := json.Marshal(webEnvelope{RoomName: n.roomName, Message: msg})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("observer endpoint returned %d", resp.StatusCode)
	}
	logging.Infow("notification delivered via http",
		"correlation_id", correlationID, "bytes", len(body))
	return nil
}
