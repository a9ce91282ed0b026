package vad

import (
	"context"
	"fmt"
	"math"

	"scribe/internal/audio"
)

// SpeechInterval is a span of detected speech in seconds.
type SpeechInterval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End-Start.
func (s SpeechInterval) Duration() float64 { return s.End - s.Start }

// Detector reports speech intervals relative to the start of buf.
type Detector interface {
	Detect(buf audio.Buffer) ([]SpeechInterval, error)
}

// Config holds energy detector parameters.
type Config struct {
	FrameMs         int     // analysis frame length
	EnergyThreshold float64 // RMS level (16-bit scale) at or above which a frame is speech
	MinSpeechMs     int     // consecutive speech needed to open an interval
	MinSilenceMs    int     // consecutive silence needed to close an interval
}

// DefaultConfig returns parameters tuned for conversational recordings.
func DefaultConfig() Config {
	return Config{
		FrameMs:         30,
		EnergyThreshold: 500,
		MinSpeechMs:     90,
		MinSilenceMs:    300,
	}
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	switch {
	case c.FrameMs <= 0:
		return fmt.Errorf("vad frame_ms must be positive")
	case c.EnergyThreshold <= 0:
		return fmt.Errorf("vad energy_threshold must be positive")
	case c.MinSpeechMs < 0 || c.MinSilenceMs < 0:
		return fmt.Errorf("vad minimum durations must be non-negative")
	}
	return nil
}

// EnergyDetector is an RMS-energy voice activity detector.
type EnergyDetector struct {
	cfg Config
}

// NewEnergyDetector constructs a detector, falling back to defaults for
// unset fields.
func NewEnergyDetector(cfg Config) *EnergyDetector {
	def := DefaultConfig()
	if cfg.FrameMs <= 0 {
		cfg.FrameMs = def.FrameMs
	}
	if cfg.EnergyThreshold <= 0 {
		cfg.EnergyThreshold = def.EnergyThreshold
	}
	return &EnergyDetector{cfg: cfg}
}

// Detect implements Detector.
func (d *EnergyDetector) Detect(buf audio.Buffer) ([]SpeechInterval, error) {
	if buf.SampleRate <= 0 {
		return nil, fmt.Errorf("vad: invalid sample rate %d", buf.SampleRate)
	}
	frameSamples := max(buf.SampleRate*d.cfg.FrameMs/1000, 1)
	frameSec := float64(frameSamples) / float64(buf.SampleRate)
	minSpeech := framesFor(d.cfg.MinSpeechMs, d.cfg.FrameMs)
	minSilence := framesFor(d.cfg.MinSilenceMs, d.cfg.FrameMs)
	total := buf.Duration()

	var (
		intervals    []SpeechInterval
		speaking     bool
		runStart     int // first frame of the current speech or silence run
		speechFrames int
		silentFrames int
		openedAt     int
	)
	frames := (len(buf.Samples) + frameSamples - 1) / frameSamples
	for i := range frames {
		from := i * frameSamples
		to := min(from+frameSamples, len(buf.Samples))
		voiced := rmsEnergy(buf.Samples[from:to]) >= d.cfg.EnergyThreshold

		if voiced {
			if speechFrames == 0 {
				runStart = i
			}
			speechFrames++
			silentFrames = 0
			if !speaking && speechFrames >= minSpeech {
				speaking = true
				openedAt = runStart
			}
			continue
		}

		if silentFrames == 0 {
			runStart = i
		}
		silentFrames++
		speechFrames = 0
		if speaking && silentFrames >= minSilence {
			speaking = false
			intervals = append(intervals, SpeechInterval{
				Start: float64(openedAt) * frameSec,
				End:   float64(runStart) * frameSec,
			})
		}
	}
	if speaking {
		end := total
		if silentFrames > 0 {
			end = math.Min(total, float64(frames-silentFrames)*frameSec)
		}
		intervals = append(intervals, SpeechInterval{Start: float64(openedAt) * frameSec, End: end})
	}
	return intervals, nil
}

func framesFor(ms, frameMs int) int {
	if ms <= 0 {
		return 1
	}
	return max((ms+frameMs-1)/frameMs, 1)
}

// rmsEnergy computes the root-mean-square energy of 16-bit PCM samples.
func rmsEnergy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// RangeProbe answers speech queries over a recording.
type RangeProbe struct {
	Source   audio.Source
	Detector Detector
}

// SpeechIn returns speech intervals inside [start, end] in absolute seconds,
// clipped to the range.
func (p RangeProbe) SpeechIn(ctx context.Context, start, end float64) ([]SpeechInterval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if end <= start {
		return nil, nil
	}
	buf, err := p.Source.ReadRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("vad: read %.2f-%.2f: %w", start, end, err)
	}
	local, err := p.Detector.Detect(buf)
	if err != nil {
		return nil, err
	}
	offset := float64(audio.FrameAt(start, p.Source.SampleRate())) / float64(p.Source.SampleRate())
	out := make([]SpeechInterval, 0, len(local))
	for _, iv := range local {
		s := math.Max(iv.Start+offset, start)
		e := math.Min(iv.End+offset, end)
		if e > s {
			out = append(out, SpeechInterval{Start: s, End: e})
		}
	}
	return out, nil
}
