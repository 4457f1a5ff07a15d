package audio

import (
	"encoding/binary"
	"math"
)

// BytesToInt16 converts little-endian 16-bit PCM bytes to samples.
// A trailing odd byte is ignored.
func BytesToInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Int16ToBytes converts samples to little-endian 16-bit PCM bytes.
func Int16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// RMS computes the root-mean-square level of a sample buffer.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the largest absolute sample value in the buffer.
func Peak(samples []int16) int16 {
	var peak int16
	for _, s := range samples {
		if s == math.MinInt16 {
			return math.MaxInt16
		}
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// MonoMix downmixes interleaved multi-channel samples to mono by
// averaging across channels. channels <= 1 returns the input unchanged.
func MonoMix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var acc int
		for c := 0; c < channels; c++ {
			acc += int(samples[i*channels+c])
		}
		out[i] = int16(acc / channels)
	}
	return out
}
