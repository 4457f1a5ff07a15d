package voice

import "sync"

// RoomState holds the two per-room flags the pipeline coordinates on.
// Writers are disciplined: only the playback streamer toggles the
// playing flag, and only the greeting controller sets greetingSent.
// Everyone else reads through the accessors.
type RoomState struct {
	mu             sync.Mutex
	isPlayingAudio bool
	greetingSent   bool
}

// NewRoomState returns room state with both flags clear.
func NewRoomState() *RoomState { return &RoomState{} }

// IsPlaying reports whether agent audio is currently streaming out.
// While true, inbound chunks are dropped so the agent cannot hear and
// answer itself.
func (s *RoomState) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPlayingAudio
}

func (s *RoomState) setPlaying(v bool) {
	s.mu.Lock()
	s.isPlayingAudio = v
	s.mu.Unlock()
}

// GreetingSent reports whether the greeting completed for this room.
// The orchestrator refuses turns until it did.
func (s *RoomState) GreetingSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.greetingSent
}

func (s *RoomState) markGreetingSent() {
	s.mu.Lock()
	s.greetingSent = true
	s.mu.Unlock()
}
