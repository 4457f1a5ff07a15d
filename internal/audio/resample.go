package audio

import "fmt"

// Resampler converts 16-bit mono PCM from one sample rate to another
// using linear interpolation. It is stateful: the fractional read
// position and the last sample of the previous batch carry over, so
// feeding a stream in arbitrary slices produces the same output as
// feeding it whole.
type Resampler struct {
	inRate  int
	outRate int
	pos     float64
	last    int16
	primed  bool
}

// NewResampler builds a resampler between the given rates.
func NewResampler(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", inRate, outRate)
	}
	return &Resampler{inRate: inRate, outRate: outRate}, nil
}

// Convert resamples one batch of mono samples. The output length varies
// slightly between calls as the fractional position carries over.
func (r *Resampler) Convert(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	step := float64(r.inRate) / float64(r.outRate)
	// Virtual input stream: [last, in...] when primed, else just in.
	at := func(i int) int16 {
		if r.primed {
			if i == 0 {
				return r.last
			}
			return in[i-1]
		}
		return in[i]
	}
	total := len(in)
	if r.primed {
		total++
	}

	out := make([]int16, 0, int(float64(len(in))/step)+2)
	pos := r.pos
	for {
		i := int(pos)
		if i >= total-1 {
			break
		}
		frac := pos - float64(i)
		a := float64(at(i))
		b := float64(at(i + 1))
		out = append(out, int16(a+(b-a)*frac))
		pos += step
	}
	// Carry the tail sample and the fractional remainder into the
	// next batch.
	r.pos = pos - float64(total-1)
	r.last = in[len(in)-1]
	r.primed = true
	return out
}

const (
	// batchFrames is how many inbound frames accumulate before a
	// resample pass runs. Batching amortizes per-call overhead on
	// 10 ms WebRTC frames.
	batchFrames = 10
	// stallFlushPushes forces a drain when this many pushes in a row
	// produced no chunk output, so a trickling track cannot starve
	// the segmenter.
	stallFlushPushes = 50
)

// Chunker adapts arbitrary inbound PCM frames to fixed-size chunks in
// the pipeline format. Frames are batched, resampled if their rate
// differs from the target, downmixed to mono, and the converted PCM is
// accumulated and sliced into chunkBytes-sized pieces.
type Chunker struct {
	targetRate int
	chunkBytes int

	rs          *Resampler
	rsInRate    int
	pending     []int16
	pendingN    int
	acc         []byte
	quietPushes int
}

// NewChunker builds a chunker producing chunkBytes-sized chunks of
// mono PCM at targetRate.
func NewChunker(targetRate, chunkBytes int) *Chunker {
	return &Chunker{targetRate: targetRate, chunkBytes: chunkBytes}
}

// Push adds one inbound frame and returns any complete chunks that
// became available. A resampler error drops the whole pending batch;
// the stream stays usable.
func (c *Chunker) Push(samples []int16, rate, channels int) ([][]byte, error) {
	mono := MonoMix(samples, channels)

	if rate != c.targetRate {
		if c.rs == nil || c.rsInRate != rate {
			rs, err := NewResampler(rate, c.targetRate)
			if err != nil {
				c.pending = c.pending[:0]
				c.pendingN = 0
				return nil, err
			}
			c.rs = rs
			c.rsInRate = rate
		}
	} else {
		c.rs = nil
	}

	c.pending = append(c.pending, mono...)
	c.pendingN++
	if c.pendingN < batchFrames {
		c.quietPushes++
		if c.quietPushes >= stallFlushPushes {
			c.quietPushes = 0
			return c.drain(), nil
		}
		return nil, nil
	}
	chunks := c.drain()
	if len(chunks) == 0 {
		c.quietPushes++
		if c.quietPushes >= stallFlushPushes {
			c.quietPushes = 0
		}
	} else {
		c.quietPushes = 0
	}
	return chunks, nil
}

// Flush converts anything pending and returns all complete chunks.
// A final partial chunk stays buffered; call Tail to take it.
func (c *Chunker) Flush() [][]byte {
	return c.drain()
}

// Tail returns the buffered partial chunk, if any, and clears it.
func (c *Chunker) Tail() []byte {
	if len(c.acc) == 0 {
		return nil
	}
	t := c.acc
	c.acc = nil
	return t
}

func (c *Chunker) drain() [][]byte {
	if c.pendingN > 0 {
		converted := c.pending
		if c.rs != nil {
			converted = c.rs.Convert(c.pending)
		}
		c.acc = append(c.acc, Int16ToBytes(converted)...)
		c.pending = c.pending[:0]
		c.pendingN = 0
	}
	var chunks [][]byte
	for len(c.acc) >= c.chunkBytes {
		chunk := make([]byte, c.chunkBytes)
		copy(chunk, c.acc[:c.chunkBytes])
		c.acc = c.acc[c.chunkBytes:]
		chunks = append(chunks, chunk)
	}
	return chunks
}
