package vad

// UtteranceHandler receives one complete utterance of 16-bit PCM when
// the segmenter flushes. It is called synchronously from Process, so a
// slow handler naturally back-pressures the track it serves.
type UtteranceHandler func(pcm []byte)

// Segmenter runs the per-track talk/silence state machine. It starts
// Idle; a speech chunk opens an utterance, and once silenceLimit
// consecutive silence chunks accumulate while Active, everything
// buffered (speech and trailing silence both) flushes to the handler.
type Segmenter struct {
	cls          *Classifier
	silenceLimit int
	suppressed   func() bool
	handler      UtteranceHandler

	speaking bool
	silence  int
	buf      []byte
}

// NewSegmenter wires a segmenter. suppressed is consulted before every
// chunk; while it reports true, chunks are discarded without touching
// any state, which keeps the agent's own playback out of its ears.
func NewSegmenter(cls *Classifier, silenceLimit int, suppressed func() bool, handler UtteranceHandler) *Segmenter {
	if suppressed == nil {
		suppressed = func() bool { return false }
	}
	return &Segmenter{
		cls:          cls,
		silenceLimit: silenceLimit,
		suppressed:   suppressed,
		handler:      handler,
	}
}

// Process feeds one chunk through the state machine. Malformed chunks
// return an error and are otherwise ignored.
func (s *Segmenter) Process(chunk []byte) error {
	if s.suppressed() {
		return nil
	}
	speech, err := s.cls.IsSpeech(chunk)
	if err != nil {
		return err
	}

	if !s.speaking {
		if !speech {
			// Idle silence is noise between turns. Keep the slate
			// clean so a stale partial buffer can never leak into
			// the next utterance.
			s.silence = 0
			s.buf = s.buf[:0]
			return nil
		}
		s.speaking = true
	}

	// Active: every chunk is part of the utterance, including the
	// trailing silence that ends it.
	s.buf = append(s.buf, chunk...)
	if speech {
		s.silence = 0
		return nil
	}
	s.silence++
	if s.silence < s.silenceLimit {
		return nil
	}

	utterance := make([]byte, len(s.buf))
	copy(utterance, s.buf)
	s.buf = s.buf[:0]
	s.speaking = false
	s.silence = 0
	if s.handler != nil {
		s.handler(utterance)
	}
	return nil
}

// Speaking reports whether the segmenter is mid-utterance.
func (s *Segmenter) Speaking() bool { return s.speaking }

// Reset drops any partial utterance and returns to Idle.
func (s *Segmenter) Reset() {
	s.speaking = false
	s.silence = 0
	s.buf = s.buf[:0]
}
