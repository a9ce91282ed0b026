package logging

// ProgressSampler thins stage progress logging to one line per percentage
// step. A new stage, or reaching 100%, always logs.
type ProgressSampler struct {
	step  float64
	stage string
	last  int
	done  bool
}

// NewProgressSampler logs whenever progress crosses a multiple of step
// percent. Non-positive steps default to 10.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 10
	}
	return &ProgressSampler{step: step, last: -1}
}

// ShouldLog reports whether progress for stage at percent is worth a log
// line. Unknown progress (negative percent) only logs on a stage change. A
// nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(stage string, percent float64) bool {
	if s == nil {
		return true
	}
	changed := stage != s.stage
	if changed {
		s.stage, s.last, s.done = stage, -1, false
	}
	if percent < 0 {
		return changed
	}
	if percent >= 100 {
		if s.done {
			return false
		}
		s.done = true
		return true
	}
	bucket := int(percent / s.step)
	if bucket > s.last {
		s.last = bucket
		return true
	}
	return changed
}
