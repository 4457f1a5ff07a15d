package voice

import (
	"os"
	"path/filepath"
	"testing"

	lkmedia "github.com/livekit/media-sdk"

	"github.com/livekit-voice-agent/internal/audio"
)

type recordingSink struct {
	state        *RoomState
	frames       []int
	totalSamples int
	playingSeen  []bool
}

func (r *recordingSink) WriteSample(sample lkmedia.PCM16Sample) error {
	r.frames = append(r.frames, len(sample))
	r.totalSamples += len(sample)
	if r.state != nil {
		r.playingSeen = append(r.playingSeen, r.state.IsPlaying())
	}
	return nil
}

func writeWAV(t *testing.T, samples []int16, rate, channels int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reply.wav")
	if err := audio.WriteWAVFile(path, audio.Int16ToBytes(samples), rate, channels); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPlayFileFramesAndSuppression(t *testing.T) {
	state := NewRoomState()
	sink := &recordingSink{state: state}
	p := NewStreamer(state, sink, 24000)

	// 1000 samples at 24 kHz: four full 10 ms frames plus a 40-sample tail.
	path := writeWAV(t, make([]int16, 1000), 24000, 1)
	if err := p.PlayFile(path, "corr"); err != nil {
		t.Fatal(err)
	}

	if len(sink.frames) != 5 {
		t.Fatalf("frames = %v, want 4 full + 1 partial", sink.frames)
	}
	for i := 0; i < 4; i++ {
		if sink.frames[i] != 240 {
			t.Errorf("frame %d has %d samples, want 240", i, sink.frames[i])
		}
	}
	if sink.frames[4] != 40 {
		t.Errorf("final frame has %d samples, want 40 (must not be padded)", sink.frames[4])
	}

	for i, playing := range sink.playingSeen {
		if !playing {
			t.Errorf("suppression flag clear during frame %d", i)
		}
	}
	if state.IsPlaying() {
		t.Error("suppression flag still set after playback")
	}
}

func TestPlayFileResamplesUpFront(t *testing.T) {
	state := NewRoomState()
	sink := &recordingSink{}
	p := NewStreamer(state, sink, 24000)

	// 1 second at 48 kHz stereo must come out as ~1 second at 24 kHz mono.
	path := writeWAV(t, make([]int16, 48000*2), 48000, 2)
	if err := p.PlayFile(path, "corr"); err != nil {
		t.Fatal(err)
	}
	if sink.totalSamples < 23900 || sink.totalSamples > 24100 {
		t.Errorf("output samples = %d, want ~24000", sink.totalSamples)
	}
}

func TestPlayFileMissingFile(t *testing.T) {
	state := NewRoomState()
	p := NewStreamer(state, &recordingSink{}, 24000)
	if err := p.PlayFile(filepath.Join(t.TempDir(), "missing.wav"), ""); err == nil {
		t.Fatal("expected error for missing file")
	}
	if state.IsPlaying() {
		t.Error("suppression flag leaked on error path")
	}
}

func TestPlayFileBadWAVClearsFlag(t *testing.T) {
	state := NewRoomState()
	p := NewStreamer(state, &recordingSink{}, 24000)
	path := filepath.Join(t.TempDir(), "bad.wav")
	os.WriteFile(path, []byte("not a wav"), 0o644)
	if err := p.PlayFile(path, ""); err == nil {
		t.Fatal("expected decode error")
	}
	if state.IsPlaying() {
		t.Error("suppression flag leaked on decode error")
	}
}
