package voice

import (
	"context"
	"errors"
	"io"
	"time"

	opus "gopkg.in/hraban/opus.v2"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/livekit-voice-agent/internal/audio"
	"github.com/livekit-voice-agent/internal/logging"
	"github.com/livekit-voice-agent/internal/vad"
)

// opusSampleRate is the decode rate of LiveKit's Opus audio tracks.
const opusSampleRate = 48000

// rmsLogInterval logs inbound audio levels every Nth chunk per track.
// Cheap way to tell a silent SIP trunk from a broken VAD threshold.
const rmsLogInterval = 100

// ingestTrack reads one subscribed audio track until it ends or the
// agent shuts down. RTP payloads decode to 48 kHz PCM, the chunker
// brings them to the pipeline format, and the segmenter decides when
// an utterance is complete. The orchestrator call inside the
// segmenter's handler is synchronous, so chunks of this track are
// processed strictly in order and at most one turn runs per track.
func (a *Agent) ingestTrack(ctx context.Context, track *webrtc.TrackRemote, rp *lksdk.RemoteParticipant) {
	fields := logging.TrackFields(track.ID(), rp.Identity())
	logging.Infow("track ingestion started", fields...)

	dec, err := opus.NewDecoder(opusSampleRate, 1)
	if err != nil {
		logging.Errorw("opus decoder init failed", append(fields, "error", err)...)
		return
	}

	cls, err := vad.NewClassifier(a.cfg.VADLevel, a.cfg.ChunkBytes())
	if err != nil {
		logging.Errorw("vad classifier init failed", append(fields, "error", err)...)
		return
	}
	seg := vad.NewSegmenter(cls, a.cfg.SilenceChunks, a.state.IsPlaying, func(pcm []byte) {
		a.orchestrator.HandleUtterance(ctx, pcm)
	})
	chunker := audio.NewChunker(a.cfg.SampleRate, a.cfg.ChunkBytes())

	// 120 ms of headroom covers every Opus frame size.
	pcm := make([]int16, opusSampleRate*120/1000)
	chunkCount := 0

	for {
		select {
		case <-ctx.Done():
			logging.Infow("track ingestion stopped", fields...)
			return
		default:
		}

		_ = track.SetReadDeadline(time.Now().Add(5 * time.Second))
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logging.Infow("track ended", fields...)
				return
			}
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			logging.Warnw("rtp read failed", append(fields, "error", err)...)
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			logging.Debugw("opus decode failed, dropping packet", append(fields, "error", err)...)
			continue
		}

		chunks, err := chunker.Push(pcm[:n], opusSampleRate, 1)
		if err != nil {
			logging.Warnw("chunker dropped batch", append(fields, "error", err)...)
			continue
		}
		for _, chunk := range chunks {
			chunkCount++
			if chunkCount%rmsLogInterval == 0 {
				samples := audio.BytesToInt16(chunk)
				logging.Debugw("inbound audio levels",
					append(logging.ChunkFields(track.ID(), len(samples), a.cfg.ChunkMs),
						"participant.identity", rp.Identity(),
						"chunk", chunkCount,
						"rms", int(audio.RMS(samples)),
						"peak", audio.Peak(samples))...)
			}
			if err := seg.Process(chunk); err != nil {
				logging.Warnw("segmenter rejected chunk", append(fields, "error", err)...)
			}
		}
	}
}
