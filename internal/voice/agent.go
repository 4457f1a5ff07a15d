package voice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"

	"github.com/livekit-voice-agent/internal/config"
	"github.com/livekit-voice-agent/internal/logging"
	"github.com/livekit-voice-agent/internal/stt"
	"github.com/livekit-voice-agent/internal/tts"
	"github.com/livekit-voice-agent/llm"
)

// agentIdentityPrefix marks automated participants. Their tracks are
// not ingested and they never trigger greetings.
const agentIdentityPrefix = "agent-"

type eventKind int

const (
	evParticipantConnected eventKind = iota
	evParticipantDisconnected
	evTrackSubscribed
	evGreetingCheck
	evDisconnected
)

// roomEvent is the closed set of lifecycle notifications. SDK
// callbacks only translate into these; all decisions happen on the
// dispatch goroutine, which keeps greeting and ingestion startup
// ordered with respect to each other.
type roomEvent struct {
	kind        eventKind
	participant *lksdk.RemoteParticipant
	track       *webrtc.TrackRemote
}

// Agent is one room's voice assistant: it joins the room, listens to
// human participants, and speaks replies through a published track.
type Agent struct {
	cfg   *config.Config
	state *RoomState

	room     *lksdk.Room
	outTrack *media.PCMLocalTrack

	orchestrator *Orchestrator
	greeting     *GreetingController

	events chan roomEvent
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAgent builds an agent for the configured room. Nothing connects
// until Start.
func NewAgent(cfg *config.Config) *Agent {
	return &Agent{
		cfg:    cfg,
		state:  NewRoomState(),
		events: make(chan roomEvent, 64),
		done:   make(chan struct{}),
	}
}

// Start connects to the room, publishes the outbound audio track, and
// launches the dispatch loop. Failure to connect or publish is fatal:
// an agent that cannot speak has no business in the room.
func (a *Agent) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	cb := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				a.push(roomEvent{kind: evTrackSubscribed, participant: rp, track: track})
			},
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			a.push(roomEvent{kind: evParticipantConnected, participant: rp})
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			a.push(roomEvent{kind: evParticipantDisconnected, participant: rp})
		},
		OnDisconnected: func() {
			a.push(roomEvent{kind: evDisconnected})
		},
	}

	room, err := lksdk.ConnectToRoom(a.cfg.LiveKitURL, lksdk.ConnectInfo{
		APIKey:              a.cfg.APIKey,
		APISecret:           a.cfg.APISecret,
		RoomName:            a.cfg.RoomName,
		ParticipantIdentity: a.cfg.AgentIdentity,
		ParticipantName:     "Voice Assistant",
		ParticipantKind:     lksdk.ParticipantAgent,
	}, cb, lksdk.WithAutoSubscribe(true))
	if err != nil {
		return fmt.Errorf("connect to room %s: %w", a.cfg.RoomName, err)
	}
	a.room = room
	logging.Infow("connected to room", logging.RoomFields(room.Name())...)

	outTrack, err := media.NewPCMLocalTrack(a.cfg.PlaybackSampleRate, a.cfg.Channels, nil)
	if err != nil {
		a.room.Disconnect()
		return fmt.Errorf("create outbound track: %w", err)
	}
	if _, err := room.LocalParticipant.PublishTrack(outTrack, &lksdk.TrackPublicationOptions{
		Name:   "agent-voice",
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		a.room.Disconnect()
		return fmt.Errorf("publish outbound track: %w", err)
	}
	a.outTrack = outTrack

	streamer := NewStreamer(a.state, outTrack, a.cfg.PlaybackSampleRate)
	notifier := NewNotifier(a.cfg.WebAPIURL, a.cfg.RoomName, a.cfg.NotifyTimeout, a.cfg.DataTimeout, a)
	ttsClient := tts.NewClient(a.cfg.TTSURL, a.cfg.Language, a.cfg.SharedAudioDir, a.cfg.TTSTimeout)
	a.greeting = NewGreetingController(a.state, ttsClient, streamer, notifier,
		a.cfg.CooldownPath, time.Duration(a.cfg.CooldownSeconds)*time.Second)
	a.orchestrator = NewOrchestrator(OrchestratorParams{
		State:      a.state,
		STT:        stt.NewClient(a.cfg.STTURL, a.cfg.Language, a.cfg.STTTimeout),
		LLM:        llm.NewClient(a.cfg.OllamaURL, a.cfg.LLMModel, a.cfg.LLMTimeout),
		TTS:        ttsClient,
		Player:     streamer,
		Notifier:   notifier,
		SampleRate: a.cfg.SampleRate,
		Channels:   a.cfg.Channels,
		TempDir:    a.cfg.TempDir,
		DebugDir:   a.cfg.DebugDir,
		STTTimeout: a.cfg.STTTimeout,
		LLMTimeout: a.cfg.LLMTimeout,
		TTSTimeout: a.cfg.TTSTimeout,
	})

	go a.dispatch(ctx)

	// Participants may already be in the room: greet them and pick up
	// any audio tracks that were published before we joined. The
	// greeting runs on the dispatch goroutine so this path cannot
	// race a participant-connected event into a double greeting.
	if a.humanPresent() {
		a.push(roomEvent{kind: evGreetingCheck})
	}
	for _, rp := range room.GetRemoteParticipants() {
		for _, pub := range rp.TrackPublications() {
			if remote, ok := pub.(*lksdk.RemoteTrackPublication); ok {
				if remote.Kind() == lksdk.TrackKindAudio && !remote.IsSubscribed() {
					if err := remote.SetSubscribed(true); err != nil {
						logging.Warnw("subscribe failed",
							append(logging.TrackFields(remote.SID(), rp.Identity()), "error", err)...)
					}
				}
			}
		}
	}

	return nil
}

// Stop tears the agent down. Safe to call once.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.outTrack != nil {
		a.outTrack.Close()
	}
	if a.room != nil {
		a.room.Disconnect()
	}
	<-a.done
}

// PublishReliable implements DataPublisher over the room's local
// participant. The SDK call has no context parameter; the notifier
// enforces its per-attempt deadline around this call.
func (a *Agent) PublishReliable(_ context.Context, payload []byte, topic string) error {
	if a.room == nil {
		return fmt.Errorf("room not connected")
	}
	return a.room.LocalParticipant.PublishDataPacket(
		lksdk.UserData(payload),
		lksdk.WithDataPublishReliable(true),
		lksdk.WithDataPublishTopic(topic),
	)
}

func (a *Agent) push(ev roomEvent) {
	select {
	case a.events <- ev:
	default:
		logging.Warnw("room event dropped, dispatch queue full", "kind", int(ev.kind))
	}
}

// dispatch is the single consumer of room lifecycle events.
func (a *Agent) dispatch(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.events:
			switch ev.kind {
			case evParticipantConnected:
				a.onParticipantConnected(ctx, ev.participant)
			case evParticipantDisconnected:
				logging.Infow("participant disconnected",
					logging.ParticipantFields(ev.participant.Identity(), ev.participant.Name())...)
			case evTrackSubscribed:
				a.onTrackSubscribed(ctx, ev.track, ev.participant)
			case evGreetingCheck:
				a.sendGreeting(ctx)
			case evDisconnected:
				logging.Infow("room disconnected", logging.RoomFields(a.cfg.RoomName)...)
				return
			}
		}
	}
}

func (a *Agent) onParticipantConnected(ctx context.Context, rp *lksdk.RemoteParticipant) {
	fields := logging.ParticipantFields(rp.Identity(), rp.Name())
	if isAgentIdentity(rp.Identity()) {
		logging.Debugw("agent participant connected, ignoring", fields...)
		return
	}
	logging.Infow("participant connected", fields...)
	if !a.state.GreetingSent() {
		// Synchronous on the dispatch goroutine: greetings stay
		// serialized with every other lifecycle decision.
		a.sendGreeting(ctx)
	}
}

func (a *Agent) sendGreeting(ctx context.Context) {
	if err := a.greeting.Send(ctx); err != nil {
		logging.Errorw("greeting failed", "error", err)
	}
}

func (a *Agent) onTrackSubscribed(ctx context.Context, track *webrtc.TrackRemote, rp *lksdk.RemoteParticipant) {
	if track == nil || rp == nil {
		return
	}
	if isAgentIdentity(rp.Identity()) {
		return
	}
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	go a.ingestTrack(ctx, track, rp)
}

// humanPresent reports whether any non-agent participant is in the room.
func (a *Agent) humanPresent() bool {
	for _, rp := range a.room.GetRemoteParticipants() {
		if !isAgentIdentity(rp.Identity()) {
			return true
		}
	}
	return false
}

func isAgentIdentity(identity string) bool {
	return strings.HasPrefix(identity, agentIdentityPrefix)
}
