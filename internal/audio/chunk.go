package audio

import "fmt"

// Chunk is one bounded slice of the recording handed to transcription.
// StartTime and EndTime are absolute seconds in the source recording.
type Chunk struct {
	Index      int
	StartTime  float64
	EndTime    float64
	SampleRate int
	Samples    []int16
	// Path is the chunk's WAV file once written to the run directory.
	Path string
}

// Duration returns EndTime-StartTime.
func (c *Chunk) Duration() float64 {
	return c.EndTime - c.StartTime
}

// Release drops the sample buffer so it can be collected.
func (c *Chunk) Release() {
	c.Samples = nil
}

// Validate checks the sample buffer matches the declared time span within
// one sample.
func (c *Chunk) Validate() error {
	if c.EndTime <= c.StartTime {
		return fmt.Errorf("chunk %d: end %.3f not after start %.3f", c.Index, c.EndTime, c.StartTime)
	}
	if c.Samples == nil {
		return nil
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("chunk %d: invalid sample rate %d", c.Index, c.SampleRate)
	}
	got := float64(len(c.Samples)) / float64(c.SampleRate)
	if diff := got - c.Duration(); diff > 1/float64(c.SampleRate)+1e-9 || diff < -1/float64(c.SampleRate)-1e-9 {
		return fmt.Errorf("chunk %d: %d samples (%.4fs) do not match span %.4fs", c.Index, len(c.Samples), got, c.Duration())
	}
	return nil
}
