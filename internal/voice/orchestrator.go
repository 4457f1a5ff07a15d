package voice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/livekit-voice-agent/internal/audio"
	"github.com/livekit-voice-agent/internal/logging"
	"github.com/livekit-voice-agent/internal/stt"
)

// apologyText replaces the reply when generation fails, so the caller
// still hears something instead of dead air.
const apologyText = "Üzgünüm, bir hata oluştu."

type transcriber interface {
	Transcribe(ctx context.Context, path, correlationID string) (*stt.Result, error)
}

type generator interface {
	Generate(ctx context.Context, prompt, correlationID string) (string, error)
}

// Orchestrator runs one turn per utterance: persist, transcribe,
// generate, synthesize, play, notify. It is called synchronously from
// a track's ingest goroutine, which serializes turns per track.
type Orchestrator struct {
	state    *RoomState
	stt      transcriber
	llm      generator
	tts      synthesizer
	player   player
	notifier turnNotifier

	sampleRate int
	channels   int
	tempDir    string
	debugDir   string

	sttTimeout time.Duration
	llmTimeout time.Duration
	ttsTimeout time.Duration
}

// OrchestratorParams collects the orchestrator's many knobs.
type OrchestratorParams struct {
	State      *RoomState
	STT        transcriber
	LLM        generator
	TTS        synthesizer
	Player     player
	Notifier   turnNotifier
	SampleRate int
	Channels   int
	TempDir    string
	DebugDir   string
	STTTimeout time.Duration
	LLMTimeout time.Duration
	TTSTimeout time.Duration
}

// NewOrchestrator wires a turn orchestrator.
func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	return &Orchestrator{
		state:      p.State,
		stt:        p.STT,
		llm:        p.LLM,
		tts:        p.TTS,
		player:     p.Player,
		notifier:   p.Notifier,
		sampleRate: p.SampleRate,
		channels:   p.Channels,
		tempDir:    p.TempDir,
		debugDir:   p.DebugDir,
		sttTimeout: p.STTTimeout,
		llmTimeout: p.LLMTimeout,
		ttsTimeout: p.TTSTimeout,
	}
}

// HandleUtterance runs one full turn. It never panics outward and
// never returns an error: every failure path is a logged, contained
// abort, and ingestion continues untouched.
func (o *Orchestrator) HandleUtterance(ctx context.Context, pcm []byte) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorw("turn panicked, recovered", "panic", fmt.Sprint(r))
		}
	}()

	if !o.state.GreetingSent() {
		logging.Debugw("skipping utterance, greeting not sent yet")
		return
	}
	// Re-checked here, not only at the segmenter: another track's
	// reply may have started playing after this utterance flushed.
	if o.state.IsPlaying() {
		logging.Debugw("skipping utterance, playback in progress")
		return
	}
	if len(pcm) == 0 {
		return
	}

	correlationID := uuid.NewString()
	ctx = logging.WithFields(ctx, "correlation_id", correlationID)
	logging.InfowCtx(ctx, "turn started",
		"pcm_bytes", len(pcm),
		"audio_ms", len(pcm)*1000/(o.sampleRate*o.channels*2))

	inputPath := filepath.Join(o.tempDir, fmt.Sprintf("utterance_%s.wav", correlationID))
	if err := audio.WriteWAVFile(inputPath, pcm, o.sampleRate, o.channels); err != nil {
		logging.ErrorwCtx(ctx, "failed to persist utterance", "error", err)
		return
	}
	// The transcription input is temporary on every path; the reply
	// WAV below is kept for diagnostics.
	defer os.Remove(inputPath)

	sttCtx, cancel := context.WithTimeout(ctx, o.sttTimeout)
	result, err := o.stt.Transcribe(sttCtx, inputPath, correlationID)
	cancel()
	if err != nil {
		logging.ErrorwCtx(ctx, "transcription failed, aborting turn", "error", err)
		return
	}
	transcript := strings.TrimSpace(result.Text)
	o.appendDebug("user_transcripts.txt", transcript)
	if transcript == "" {
		logging.InfowCtx(ctx, "empty transcript, aborting turn")
		return
	}
	logging.InfowCtx(ctx, "transcript received", "text", transcript)

	llmCtx, cancel := context.WithTimeout(ctx, o.llmTimeout)
	reply, err := o.llm.Generate(llmCtx, transcript, correlationID)
	cancel()
	if err != nil || strings.TrimSpace(reply) == "" {
		logging.WarnwCtx(ctx, "generation failed, using fallback reply", "error", err)
		reply = apologyText
	}
	o.appendDebug("conversation_log.txt",
		fmt.Sprintf("user: %s | agent: %s", transcript, reply))

	ttsCtx, cancel := context.WithTimeout(ctx, o.ttsTimeout)
	replyPath, err := o.tts.Synthesize(ttsCtx, reply, fmt.Sprintf("reply_%s.wav", correlationID), correlationID)
	cancel()
	if err != nil {
		logging.ErrorwCtx(ctx, "synthesis failed, aborting turn", "error", err)
		return
	}

	if err := o.player.PlayFile(replyPath, correlationID); err != nil {
		logging.ErrorwCtx(ctx, "playback failed", "error", err)
	}
	if o.notifier != nil {
		o.notifier.Send(ctx, transcript, reply, replyPath, correlationID)
	}
	logging.InfowCtx(ctx, "turn complete", "reply_chars", len(reply))
}

// appendDebug writes one line to a debug log under debugDir.
// Best-effort: disabled when no debug dir is configured, and failures
// only warn.
func (o *Orchestrator) appendDebug(name, line string) {
	if o.debugDir == "" || line == "" {
		return
	}
	path := filepath.Join(o.debugDir, name)
	stamped := fmt.Sprintf("[%s] %s", time.Now().Format(time.RFC3339), line)
	if err := appendLine(path, stamped); err != nil {
		logging.Warnw("debug log append failed", "file", path, "error", err)
	}
}
