package transcript

import (
	"fmt"
	"strings"

	"scribe/internal/services"
)

const (
	// UnknownSpeaker marks segments whose speaker could not be attributed.
	UnknownSpeaker = "UNKNOWN"
	// Uncategorized marks segments the classifier did not label.
	Uncategorized = "uncategorized"
)

// Segment is one timed piece of transcript text.
type Segment struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Text     string  `json:"text"`
	Speaker  string  `json:"speaker,omitempty"`
	Category string  `json:"category,omitempty"`
}

// Midpoint returns the centre of the segment.
func (s Segment) Midpoint() float64 { return (s.Start + s.End) / 2 }

// ChunkTranscript is the transcription of one chunk.
type ChunkTranscript struct {
	ChunkIndex int       `json:"chunk_index"`
	StartTime  float64   `json:"start_time"`
	EndTime    float64   `json:"end_time"`
	Segments   []Segment `json:"segments"`
}

// Globalize returns a copy with segment times shifted from chunk-local to
// recording time. Segments with no text are dropped; timing is otherwise
// carried through untouched so malformed engine output still surfaces in
// Validate.
func (c ChunkTranscript) Globalize() ChunkTranscript {
	out := ChunkTranscript{ChunkIndex: c.ChunkIndex, StartTime: c.StartTime, EndTime: c.EndTime}
	out.Segments = make([]Segment, 0, len(c.Segments))
	for _, seg := range c.Segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		seg.Start += c.StartTime
		seg.End += c.StartTime
		out.Segments = append(out.Segments, seg)
	}
	return out
}

// Text joins segment texts with single spaces.
func Text(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Clone returns a deep copy of segments.
func Clone(segments []Segment) []Segment {
	if segments == nil {
		return nil
	}
	out := make([]Segment, len(segments))
	copy(out, segments)
	return out
}

// Violation describes one ordering problem in a merged transcript.
type Violation struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

const (
	ViolationInverted    = "inverted"
	ViolationOverlap     = "overlap"
	ViolationNonIncrease = "non_increasing_start"
)

// Validate checks that segments are well formed, ordered, and non-overlapping.
// It reports every violation rather than correcting them.
func Validate(segments []Segment, tolerance float64) []Violation {
	var out []Violation
	for i, seg := range segments {
		if seg.End < seg.Start {
			out = append(out, Violation{Index: i, Kind: ViolationInverted,
				Detail: fmt.Sprintf("end %.3f before start %.3f", seg.End, seg.Start)})
		}
		if i == 0 {
			continue
		}
		prev := segments[i-1]
		if seg.Start <= prev.Start {
			out = append(out, Violation{Index: i, Kind: ViolationNonIncrease,
				Detail: fmt.Sprintf("start %.3f not after previous start %.3f", seg.Start, prev.Start)})
		}
		if prev.End > seg.Start+tolerance {
			out = append(out, Violation{Index: i, Kind: ViolationOverlap,
				Detail: fmt.Sprintf("previous end %.3f after start %.3f", prev.End, seg.Start)})
		}
	}
	return out
}

// OrderingError reports a merged transcript that failed validation.
type OrderingError struct {
	Violations []Violation
}

// Unwrap classifies ordering failures as validation errors.
func (e *OrderingError) Unwrap() error { return services.ErrValidation }

func (e *OrderingError) Error() string {
	if len(e.Violations) == 0 {
		return "transcript ordering violated"
	}
	first := e.Violations[0]
	return fmt.Sprintf("transcript ordering violated (%d issues, first at segment %d: %s %s)",
		len(e.Violations), first.Index, first.Kind, first.Detail)
}
