package audio

import "math"

// Buffer holds mono 16-bit PCM samples.
type Buffer struct {
	SampleRate int
	Samples    []int16
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Source serves time ranges of a recording.
type Source interface {
	SampleRate() int
	Duration() float64
	// ReadRange returns the samples in [start, end) seconds, clamped to the
	// recording bounds.
	ReadRange(start, end float64) (Buffer, error)
}

// FrameAt converts seconds to a sample index at rate, rounding to the
// nearest frame.
func FrameAt(seconds float64, rate int) int64 {
	if seconds <= 0 || rate <= 0 {
		return 0
	}
	return int64(math.Round(seconds * float64(rate)))
}

// MemorySource is an in-memory Source, used for short buffers and tests.
type MemorySource struct {
	buf Buffer
}

// NewMemorySource wraps buf as a Source.
func NewMemorySource(buf Buffer) *MemorySource {
	return &MemorySource{buf: buf}
}

func (m *MemorySource) SampleRate() int   { return m.buf.SampleRate }
func (m *MemorySource) Duration() float64 { return m.buf.Duration() }

func (m *MemorySource) ReadRange(start, end float64) (Buffer, error) {
	total := int64(len(m.buf.Samples))
	from := min(FrameAt(start, m.buf.SampleRate), total)
	to := min(FrameAt(end, m.buf.SampleRate), total)
	if to < from {
		to = from
	}
	out := make([]int16, to-from)
	copy(out, m.buf.Samples[from:to])
	return Buffer{SampleRate: m.buf.SampleRate, Samples: out}, nil
}
