package diarization

import (
	"context"
	"sort"

	"scribe/internal/transcript"
)

// Diarizer labels segments with speakers. The returned slice has the same
// length and order as segments.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, segments []transcript.Segment) ([]transcript.Segment, error)
}

// Turn is one speaker's continuous stretch of audio.
type Turn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Assign copies segments and sets each one's speaker to the speaker whose
// turns overlap it the most. Segments no turn touches get UnknownSpeaker.
// Ties go to the speaker whose first overlapping turn comes earliest.
func Assign(segments []transcript.Segment, turns []Turn) []transcript.Segment {
	ordered := make([]Turn, 0, len(turns))
	for _, t := range turns {
		if t.End > t.Start && t.Speaker != "" {
			ordered = append(ordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	out := transcript.Clone(segments)
	for i := range out {
		seg := &out[i]
		overlap := make(map[string]float64)
		var order []string
		for _, t := range ordered {
			if t.Start >= seg.End {
				break
			}
			shared := min(seg.End, t.End) - max(seg.Start, t.Start)
			if shared <= 0 {
				continue
			}
			if _, seen := overlap[t.Speaker]; !seen {
				order = append(order, t.Speaker)
			}
			overlap[t.Speaker] += shared
		}
		seg.Speaker = transcript.UnknownSpeaker
		best := 0.0
		for _, speaker := range order {
			if overlap[speaker] > best {
				best = overlap[speaker]
				seg.Speaker = speaker
			}
		}
	}
	return out
}

// Degrade returns a copy of segments with every speaker unknown.
func Degrade(segments []transcript.Segment) []transcript.Segment {
	out := transcript.Clone(segments)
	for i := range out {
		out[i].Speaker = transcript.UnknownSpeaker
	}
	return out
}

// Speakers returns the distinct known speakers in order of first appearance.
func Speakers(segments []transcript.Segment) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, seg := range segments {
		if seg.Speaker == "" || seg.Speaker == transcript.UnknownSpeaker {
			continue
		}
		if _, ok := seen[seg.Speaker]; ok {
			continue
		}
		seen[seg.Speaker] = struct{}{}
		out = append(out, seg.Speaker)
	}
	return out
}
