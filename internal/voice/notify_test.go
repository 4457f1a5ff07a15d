package voice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	attempts  []time.Time
	payloads  [][]byte
	topics    []string
	failUntil int
}

func (r *recordingPublisher) PublishReliable(_ context.Context, payload []byte, topic string) error {
	r.attempts = append(r.attempts, time.Now())
	r.payloads = append(r.payloads, payload)
	r.topics = append(r.topics, topic)
	if len(r.attempts) <= r.failUntil {
		return io.ErrClosedPipe
	}
	return nil
}

func writeAudioFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reply.wav")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSendHTTPPrimary(t *testing.T) {
	var got webEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode envelope: %v", err)
		}
	}))
	defer srv.Close()

	pub := &recordingPublisher{}
	n := NewNotifier(srv.URL, "room-1", 5*time.Second, time.Second, pub)
	n.Send(context.Background(), "merhaba", "Size nasıl yardımcı olabilirim", writeAudioFile(t, 100), "corr")

	if got.RoomName != "room-1" {
		t.Errorf("roomName = %q", got.RoomName)
	}
	if got.Message == nil || got.Message.Type != "agent_response" {
		t.Fatalf("message = %+v", got.Message)
	}
	if got.Message.Transcript != "merhaba" {
		t.Errorf("transcript = %q", got.Message.Transcript)
	}
	if got.Message.AudioBase64 == "" {
		t.Error("audio missing")
	}
	if len(pub.attempts) != 0 {
		t.Errorf("fallback used despite HTTP success: %d attempts", len(pub.attempts))
	}
}

func TestSendFallbackTwoAttemptsWithPause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	pub := &recordingPublisher{failUntil: 2} // both attempts fail
	n := NewNotifier(srv.URL, "room-1", time.Second, time.Second, pub)
	n.retryPause = 50 * time.Millisecond

	// Total failure must be swallowed, not returned or panicked.
	n.Send(context.Background(), "t", "r", writeAudioFile(t, 10), "corr")

	if len(pub.attempts) != 2 {
		t.Fatalf("fallback attempts = %d, want 2", len(pub.attempts))
	}
	if gap := pub.attempts[1].Sub(pub.attempts[0]); gap < 40*time.Millisecond {
		t.Errorf("no pause between attempts: %v", gap)
	}
	for _, topic := range pub.topics {
		if topic != "agent-messages" {
			t.Errorf("topic = %q", topic)
		}
	}
}

func TestSendFallbackStopsOnSuccess(t *testing.T) {
	pub := &recordingPublisher{failUntil: 1} // first fails, second succeeds
	n := NewNotifier("", "room-1", time.Second, time.Second, pub)
	n.retryPause = time.Millisecond

	n.Send(context.Background(), "t", "r", writeAudioFile(t, 10), "corr")
	if len(pub.attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(pub.attempts))
	}

	var msg Message
	if err := json.Unmarshal(pub.payloads[1], &msg); err != nil {
		t.Fatalf("fallback payload not a message: %v", err)
	}
	if msg.Type != "agent_response" {
		t.Errorf("type = %q", msg.Type)
	}
}

// stuckPublisher blocks forever and ignores its context, like an SDK
// call with no context parameter would.
type stuckPublisher struct {
	mu    sync.Mutex
	calls int
	block chan struct{}
}

func (s *stuckPublisher) PublishReliable(context.Context, []byte, string) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-s.block
	return nil
}

func TestSendFallbackAttemptDeadline(t *testing.T) {
	pub := &stuckPublisher{block: make(chan struct{})}
	defer close(pub.block)

	n := NewNotifier("", "room-1", time.Second, 30*time.Millisecond, pub)
	n.retryPause = 5 * time.Millisecond

	start := time.Now()
	n.Send(context.Background(), "t", "r", writeAudioFile(t, 10), "corr")
	elapsed := time.Since(start)

	pub.mu.Lock()
	calls := pub.calls
	pub.mu.Unlock()
	if calls != 2 {
		t.Errorf("attempts started = %d, want 2", calls)
	}
	// Two 30 ms deadlines plus one 5 ms pause; anywhere near a second
	// means the deadline never cut the hung publish off.
	if elapsed > 500*time.Millisecond {
		t.Errorf("Send blocked for %v on a hung publisher", elapsed)
	}
}

func TestMarshalWithLimitTruncatesAudio(t *testing.T) {
	msg := &Message{
		Type:        "agent_response",
		AudioBase64: strings.Repeat("A", 1_200_000),
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	payload, truncated, err := marshalWithLimit(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !truncated {
		t.Fatal("expected truncation")
	}
	if len(msg.AudioBase64) != truncatedAudioChars {
		t.Errorf("audio kept %d chars, want exactly %d", len(msg.AudioBase64), truncatedAudioChars)
	}
	if len(payload) > maxMessageBytes {
		t.Errorf("payload still %d bytes after truncation", len(payload))
	}
}

func TestMarshalWithLimitSmallPayloadUntouched(t *testing.T) {
	msg := &Message{Type: "agent_response", AudioBase64: "short"}
	_, truncated, err := marshalWithLimit(msg)
	if err != nil {
		t.Fatal(err)
	}
	if truncated {
		t.Error("small payload must not be truncated")
	}
	if msg.AudioBase64 != "short" {
		t.Error("audio mutated")
	}
}
