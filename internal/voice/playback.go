package voice

import (
	"fmt"
	"os"
	"time"

	lkmedia "github.com/livekit/media-sdk"

	"github.com/livekit-voice-agent/internal/audio"
	"github.com/livekit-voice-agent/internal/logging"
)

// FrameSink is where playback frames go. *media.PCMLocalTrack
// satisfies it; tests substitute a recorder. The sink owns pacing:
// writes block when its internal queue is full, so the streamer never
// sleeps between frames itself.
type FrameSink interface {
	WriteSample(sample lkmedia.PCM16Sample) error
}

// Streamer plays WAV files into the room's published audio track while
// holding the room's playback-suppression flag.
type Streamer struct {
	state    *RoomState
	sink     FrameSink
	sinkRate int
}

// NewStreamer builds a streamer writing to sink at sinkRate Hz mono.
func NewStreamer(state *RoomState, sink FrameSink, sinkRate int) *Streamer {
	return &Streamer{state: state, sink: sink, sinkRate: sinkRate}
}

// PlayFile decodes the WAV at path and streams it as 10 ms frames.
// Audio in a different format is converted up front, in full, before
// the first frame goes out. The suppression flag is raised before the
// first write and guaranteed to drop again whatever happens.
func (p *Streamer) PlayFile(path, correlationID string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read playback file: %w", err)
	}
	info, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("decode playback file: %w", err)
	}

	samples := audio.BytesToInt16(info.PCM)
	samples = audio.MonoMix(samples, info.Channels)
	if info.SampleRate != p.sinkRate {
		rs, err := audio.NewResampler(info.SampleRate, p.sinkRate)
		if err != nil {
			return fmt.Errorf("playback resample: %w", err)
		}
		samples = rs.Convert(samples)
	}
	if len(samples) == 0 {
		return nil
	}

	frameSamples := p.sinkRate / 100 // 10 ms

	p.state.setPlaying(true)
	defer p.state.setPlaying(false)

	start := time.Now()
	for off := 0; off < len(samples); off += frameSamples {
		end := off + frameSamples
		if end > len(samples) {
			// The final frame keeps its true length instead of
			// being padded out to 10 ms.
			end = len(samples)
		}
		if err := p.sink.WriteSample(lkmedia.PCM16Sample(samples[off:end])); err != nil {
			return fmt.Errorf("write playback frame: %w", err)
		}
	}

	logging.Infow("playback complete",
		"correlation_id", correlationID,
		"file", path,
		"samples", len(samples),
		"audio_ms", len(samples)*1000/p.sinkRate,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
