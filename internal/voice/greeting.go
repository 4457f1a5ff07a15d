package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/livekit-voice-agent/internal/logging"
)

// greetingText is spoken once per conversation when a human joins.
const greetingText = " Merhaba. Size nasıl yardımcı olabilirim ?"

// cooldownRecord persists across agent instances so a page refresh
// (room teardown + immediate rejoin) does not greet the user twice.
type cooldownRecord struct {
	LastGreetingTime float64 `json:"last_greeting_time"`
	CooldownSeconds  int     `json:"cooldown_seconds"`
}

type synthesizer interface {
	Synthesize(ctx context.Context, text, outputFilename, correlationID string) (string, error)
}

type player interface {
	PlayFile(path, correlationID string) error
}

type turnNotifier interface {
	Send(ctx context.Context, transcript, replyText, audioPath, correlationID string)
}

// GreetingController owns the greeting flow and the greetingSent flag.
// Send is additionally serialized by a mutex so overlapping callers
// cannot both pass the cooldown check and greet twice.
type GreetingController struct {
	state    *RoomState
	tts      synthesizer
	player   player
	notifier turnNotifier

	mu           sync.Mutex
	cooldownPath string
	cooldown     time.Duration
	now          func() time.Time
}

// NewGreetingController wires the controller.
func NewGreetingController(state *RoomState, tts synthesizer, player player, notifier turnNotifier, cooldownPath string, cooldown time.Duration) *GreetingController {
	return &GreetingController{
		state:        state,
		tts:          tts,
		player:       player,
		notifier:     notifier,
		cooldownPath: cooldownPath,
		cooldown:     cooldown,
		now:          time.Now,
	}
}

// ShouldSend checks the process flag and the persisted cooldown. Any
// trouble reading the record fails open: better to greet twice than
// never greet a new caller.
func (g *GreetingController) ShouldSend() bool {
	if g.state.GreetingSent() {
		return false
	}
	data, err := os.ReadFile(g.cooldownPath)
	if err != nil {
		return true
	}
	var rec cooldownRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logging.Warnw("greeting cooldown record unreadable, allowing greeting",
			"file", g.cooldownPath, "error", err)
		return true
	}
	window := g.cooldown
	if rec.CooldownSeconds > 0 {
		window = time.Duration(rec.CooldownSeconds) * time.Second
	}
	elapsed := g.now().Sub(time.Unix(0, int64(rec.LastGreetingTime*float64(time.Second))))
	if elapsed < window {
		logging.Infow("greeting cooldown active, skipping",
			"remaining_s", int((window - elapsed).Seconds()))
		return false
	}
	return true
}

// Send runs the greeting: synthesize, play, notify the observer with
// an empty transcript, delete the audio, then record the cooldown and
// mark the room greeted. Playback and notification failures are
// logged but do not block marking; a synthesis failure aborts without
// marking so the next participant event retries.
func (g *GreetingController) Send(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ShouldSend() {
		return nil
	}
	correlationID := uuid.NewString()
	filename := fmt.Sprintf("greeting_%s.wav", correlationID)

	logging.Infow("sending greeting", "correlation_id", correlationID)
	path, err := g.tts.Synthesize(ctx, greetingText, filename, correlationID)
	if err != nil {
		return fmt.Errorf("greeting synthesis: %w", err)
	}

	if err := g.player.PlayFile(path, correlationID); err != nil {
		logging.Errorw("greeting playback failed", "correlation_id", correlationID, "error", err)
	}
	if g.notifier != nil {
		g.notifier.Send(ctx, "", greetingText, path, correlationID)
	}
	if err := os.Remove(path); err != nil {
		logging.Warnw("greeting audio cleanup failed", "correlation_id", correlationID, "error", err)
	}

	g.recordCooldown()
	g.state.markGreetingSent()
	logging.Infow("greeting sent, turn processing enabled", "correlation_id", correlationID)
	return nil
}

func (g *GreetingController) recordCooldown() {
	rec := cooldownRecord{
		LastGreetingTime: float64(g.now().UnixNano()) / float64(time.Second),
		CooldownSeconds:  int(g.cooldown.Seconds()),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		logging.Errorw("greeting cooldown marshal failed", "error", err)
		return
	}
	if err := SaveFileAtomic(g.cooldownPath, data, 0o644); err != nil {
		logging.Errorw("greeting cooldown write failed", "file", g.cooldownPath, "error", err)
	}
}
