package vad

import (
	"fmt"

	"github.com/livekit-voice-agent/internal/audio"
)

// Classifier decides whether a fixed-size PCM chunk contains speech.
// It is an energy detector: each sensitivity level maps to an RMS
// threshold, with higher levels requiring less energy to count as
// speech (matching the aggressiveness scale of common VADs where
// level 3 is the most permissive for detection in noisy rooms).
type Classifier struct {
	chunkBytes int
	threshold  float64
}

// rmsThresholds index by sensitivity level 0..3. Tuned against 16-bit
// PCM speech captured from SIP trunks and browser microphones.
var rmsThresholds = [4]float64{1500, 900, 500, 250}

// NewClassifier builds a classifier for chunkBytes-sized chunks at the
// given sensitivity level (0 least sensitive, 3 most).
func NewClassifier(level, chunkBytes int) (*Classifier, error) {
	if level < 0 || level > 3 {
		return nil, fmt.Errorf("sensitivity level must be 0..3, got %d", level)
	}
	if chunkBytes <= 0 || chunkBytes%2 != 0 {
		return nil, fmt.Errorf("chunk size must be a positive even byte count, got %d", chunkBytes)
	}
	return &Classifier{chunkBytes: chunkBytes, threshold: rmsThresholds[level]}, nil
}

// IsSpeech classifies one chunk. Chunks of any other size are an
// error: the segmenter's timing math depends on uniform chunks.
func (c *Classifier) IsSpeech(chunk []byte) (bool, error) {
	if len(chunk) != c.chunkBytes {
		return false, fmt.Errorf("chunk size %d, want %d", len(chunk), c.chunkBytes)
	}
	return audio.RMS(audio.BytesToInt16(chunk)) >= c.threshold, nil
}

// ChunkBytes returns the chunk size this classifier expects.
func (c *Classifier) ChunkBytes() int { return c.chunkBytes }
