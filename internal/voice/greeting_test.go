package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeTTS struct {
	dir   string
	fail  bool
	texts []string
}

func (f *fakeTTS) Synthesize(_ context.Context, text, outputFilename, _ string) (string, error) {
	if f.fail {
		return "", errors.New("tts down")
	}
	f.texts = append(f.texts, text)
	path := filepath.Join(f.dir, outputFilename)
	if err := os.WriteFile(path, []byte("RIFFaudio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakePlayer struct {
	played []string
	err    error
}

func (f *fakePlayer) PlayFile(path, _ string) error {
	f.played = append(f.played, path)
	return f.err
}

type sentNote struct {
	transcript string
	reply      string
	audioPath  string
}

type fakeNotifier struct {
	sends []sentNote
}

func (f *fakeNotifier) Send(_ context.Context, transcript, reply, audioPath, _ string) {
	f.sends = append(f.sends, sentNote{transcript, reply, audioPath})
}

func writeCooldown(t *testing.T, path string, last time.Time, seconds int) {
	t.Helper()
	rec := cooldownRecord{
		LastGreetingTime: float64(last.UnixNano()) / float64(time.Second),
		CooldownSeconds:  seconds,
	}
	data, _ := json.Marshal(rec)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newGreeting(t *testing.T, state *RoomState, tts *fakeTTS, pl *fakePlayer, nt *fakeNotifier) (*GreetingController, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "greeting_cooldown.json")
	return NewGreetingController(state, tts, pl, nt, path, 30*time.Second), path
}

func TestShouldSendCooldown(t *testing.T) {
	now := time.Now()
	g, path := newGreeting(t, NewRoomState(), nil, nil, nil)
	g.now = func() time.Time { return now }

	// No record: fail open.
	if !g.ShouldSend() {
		t.Error("missing record must allow greeting")
	}

	writeCooldown(t, path, now.Add(-10*time.Second), 30)
	if g.ShouldSend() {
		t.Error("10s since last greeting must block (30s window)")
	}

	writeCooldown(t, path, now.Add(-31*time.Second), 30)
	if !g.ShouldSend() {
		t.Error("31s since last greeting must allow")
	}

	os.WriteFile(path, []byte("{corrupt"), 0o644)
	if !g.ShouldSend() {
		t.Error("corrupt record must fail open")
	}
}

func TestShouldSendRespectsProcessFlag(t *testing.T) {
	state := NewRoomState()
	state.markGreetingSent()
	g, _ := newGreeting(t, state, nil, nil, nil)
	if g.ShouldSend() {
		t.Error("already-greeted room must not greet again")
	}
}

func TestSendGreetingFullFlow(t *testing.T) {
	state := NewRoomState()
	tts := &fakeTTS{dir: t.TempDir()}
	pl := &fakePlayer{}
	nt := &fakeNotifier{}
	g, cooldownPath := newGreeting(t, state, tts, pl, nt)

	if err := g.Send(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(tts.texts) != 1 || tts.texts[0] != greetingText {
		t.Errorf("synthesized %v", tts.texts)
	}
	if len(pl.played) != 1 {
		t.Fatalf("played %d files", len(pl.played))
	}
	if len(nt.sends) != 1 {
		t.Fatalf("notified %d times", len(nt.sends))
	}
	if nt.sends[0].transcript != "" || nt.sends[0].reply != greetingText {
		t.Errorf("notification = %+v", nt.sends[0])
	}
	// Greeting audio is deleted after use.
	if _, err := os.Stat(pl.played[0]); !os.IsNotExist(err) {
		t.Error("greeting audio not deleted")
	}
	if !state.GreetingSent() {
		t.Error("greeting flag not set")
	}
	data, err := os.ReadFile(cooldownPath)
	if err != nil {
		t.Fatalf("cooldown not recorded: %v", err)
	}
	var rec cooldownRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("cooldown record unreadable: %v", err)
	}
	if rec.CooldownSeconds != 30 || rec.LastGreetingTime == 0 {
		t.Errorf("cooldown record = %+v", rec)
	}
}

func TestSendGreetingSynthesisFailureDoesNotMark(t *testing.T) {
	state := NewRoomState()
	tts := &fakeTTS{dir: t.TempDir(), fail: true}
	g, cooldownPath := newGreeting(t, state, tts, &fakePlayer{}, &fakeNotifier{})

	if err := g.Send(context.Background()); err == nil {
		t.Fatal("expected synthesis error")
	}
	if state.GreetingSent() {
		t.Error("failed greeting must not set the flag")
	}
	if _, err := os.Stat(cooldownPath); !os.IsNotExist(err) {
		t.Error("failed greeting must not record cooldown")
	}
}

func TestSendGreetingPlaybackFailureStillMarks(t *testing.T) {
	state := NewRoomState()
	tts := &fakeTTS{dir: t.TempDir()}
	pl := &fakePlayer{err: fmt.Errorf("track closed")}
	g, _ := newGreeting(t, state, tts, pl, &fakeNotifier{})

	if err := g.Send(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !state.GreetingSent() {
		t.Error("playback failure must not block marking: synthesis succeeded")
	}
}

func TestSendGreetingConcurrentCallsGreetOnce(t *testing.T) {
	state := NewRoomState()
	tts := &fakeTTS{dir: t.TempDir()}
	g, _ := newGreeting(t, state, tts, &fakePlayer{}, &fakeNotifier{})

	// Startup path and a participant-connected event can both decide
	// to greet; only one greeting may go out.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Send(context.Background())
		}()
	}
	wg.Wait()

	if len(tts.texts) != 1 {
		t.Errorf("synthesized %d greetings, want 1", len(tts.texts))
	}
	if !state.GreetingSent() {
		t.Error("greeting flag not set")
	}
}

func TestSendGreetingSkipsWhenAlreadySent(t *testing.T) {
	state := NewRoomState()
	state.markGreetingSent()
	tts := &fakeTTS{dir: t.TempDir()}
	g, _ := newGreeting(t, state, tts, &fakePlayer{}, &fakeNotifier{})

	if err := g.Send(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(tts.texts) != 0 {
		t.Error("no synthesis expected for an already-greeted room")
	}
}
