package chunking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"scribe/internal/vad"
)

// epsilon absorbs float noise when comparing boundary positions.
const epsilon = 1e-6

// SpeechFinder reports speech intervals inside [start, end] in absolute seconds.
type SpeechFinder interface {
	SpeechIn(ctx context.Context, start, end float64) ([]vad.SpeechInterval, error)
}

// SplitKind records how a chunk's end was chosen.
type SplitKind string

const (
	SplitSilence SplitKind = "silence"
	SplitHard    SplitKind = "hard"
	SplitFinal   SplitKind = "final"
)

// Params controls boundary planning. All values are seconds.
type Params struct {
	MaxChunk     float64
	Overlap      float64
	SearchWindow float64
	// WidthSaturation is the gap width at which a gap earns half its
	// possible width score.
	WidthSaturation float64
}

// DefaultParams returns ten-minute chunks with a five second overlap.
func DefaultParams() Params {
	return Params{
		MaxChunk:        600,
		Overlap:         5,
		SearchWindow:    30,
		WidthSaturation: 0.5,
	}
}

// Validate reports the first invalid parameter.
func (p Params) Validate() error {
	switch {
	case p.MaxChunk <= 0:
		return errors.New("max chunk length must be positive")
	case p.Overlap < 0:
		return errors.New("overlap must be non-negative")
	case p.Overlap >= p.MaxChunk:
		return fmt.Errorf("overlap %.2fs must be shorter than max chunk %.2fs", p.Overlap, p.MaxChunk)
	case p.SearchWindow < 0:
		return errors.New("search window must be non-negative")
	case p.SearchWindow*2 >= p.MaxChunk:
		return fmt.Errorf("search window %.2fs must be under half the max chunk %.2fs", p.SearchWindow, p.MaxChunk)
	case p.WidthSaturation < 0:
		return errors.New("width saturation must be non-negative")
	}
	return nil
}

// Boundary is one planned chunk.
type Boundary struct {
	Index int       `json:"index"`
	Start float64   `json:"start"`
	End   float64   `json:"end"`
	Split SplitKind `json:"split"`
	// Target is the timeline position the split was aimed at (zero for the
	// final chunk).
	Target float64 `json:"target,omitempty"`
}

// Duration returns End-Start.
func (b Boundary) Duration() float64 { return b.End - b.Start }

// Gap is a silence gap inside a search window.
type Gap struct {
	Start float64
	End   float64
}

// Width returns End-Start.
func (g Gap) Width() float64 { return g.End - g.Start }

// Plan computes ordered, overlapping chunk boundaries for a recording of the
// given duration.
func Plan(ctx context.Context, duration float64, finder SpeechFinder, params Params) ([]Boundary, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if duration <= epsilon {
		return nil, nil
	}

	var planned []Boundary
	if duration <= params.MaxChunk+epsilon {
		planned = []Boundary{{Start: 0, End: duration, Split: SplitFinal}}
	} else {
		var err error
		if planned, err = walk(ctx, duration, finder, params); err != nil {
			return nil, err
		}
	}

	kept := make([]Boundary, 0, len(planned))
	for _, b := range planned {
		speech, err := finder.SpeechIn(ctx, b.Start, b.End)
		if err != nil {
			return nil, fmt.Errorf("probe chunk %.2f-%.2f: %w", b.Start, b.End, err)
		}
		if len(speech) == 0 {
			continue
		}
		b.Index = len(kept)
		kept = append(kept, b)
	}
	return kept, nil
}

func walk(ctx context.Context, duration float64, finder SpeechFinder, params Params) ([]Boundary, error) {
	var out []Boundary
	chunkStart := 0.0
	prevSplit := 0.0
	for k := 1; ; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if duration-prevSplit <= params.MaxChunk+epsilon {
			out = append(out, Boundary{Start: chunkStart, End: duration, Split: SplitFinal})
			return out, nil
		}

		target := float64(k) * params.MaxChunk
		limit := math.Min(chunkStart+params.MaxChunk+params.Overlap, duration)
		lo := math.Max(target-params.SearchWindow, prevSplit+epsilon)
		hi := math.Min(target+params.SearchWindow, limit)
		aim := math.Min(target, limit)

		split, kind := aim, SplitHard
		if params.SearchWindow > 0 && hi > lo {
			// Probe the whole window so gaps cut by the length limit keep
			// their true edges for margin placement.
			probeHi := math.Min(target+params.SearchWindow, duration)
			speech, err := finder.SpeechIn(ctx, lo, probeHi)
			if err != nil {
				return nil, fmt.Errorf("probe window %.2f-%.2f: %w", lo, probeHi, err)
			}
			if at, ok := pickSplit(SilenceGaps(speech, lo, probeHi), lo, hi, aim, params); ok {
				split, kind = at, SplitSilence
			}
		}

		out = append(out, Boundary{Start: chunkStart, End: split, Split: kind, Target: target})
		prevSplit = split
		chunkStart = math.Max(split-params.Overlap, 0)
	}
}

func pickSplit(gaps []Gap, lo, hi, aim float64, params Params) (float64, bool) {
	reachable := make([]Gap, 0, len(gaps))
	full := make([]Gap, 0, len(gaps))
	for _, g := range gaps {
		clipped := Gap{Start: math.Max(g.Start, lo), End: math.Min(g.End, hi)}
		if clipped.Width() <= epsilon {
			continue
		}
		reachable = append(reachable, clipped)
		full = append(full, g)
	}
	best, ok := BestGap(reachable, aim, params)
	if !ok {
		return 0, false
	}
	for i, g := range reachable {
		if g == best {
			at := SplitPoint(full[i], aim)
			return math.Min(math.Max(at, g.Start), g.End), true
		}
	}
	return 0, false
}

// SilenceGaps returns the complement of speech within [lo, hi]. Speech
// intervals may be unsorted or overlapping.
func SilenceGaps(speech []vad.SpeechInterval, lo, hi float64) []Gap {
	sorted := make([]vad.SpeechInterval, len(speech))
	copy(sorted, speech)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var gaps []Gap
	cursor := lo
	for _, iv := range sorted {
		s := math.Max(iv.Start, lo)
		e := math.Min(iv.End, hi)
		if e <= s {
			continue
		}
		if s > cursor+epsilon {
			gaps = append(gaps, Gap{Start: cursor, End: s})
		}
		cursor = math.Max(cursor, e)
	}
	if hi > cursor+epsilon {
		gaps = append(gaps, Gap{Start: cursor, End: hi})
	}
	return gaps
}

// ScoreGap rates a gap for splitting near target. Proximity falls linearly
// from 1 when the gap touches the target to 0 at the edge of the search
// window; width rises towards 1 as the gap grows past WidthSaturation.
func ScoreGap(g Gap, target float64, params Params) float64 {
	width := g.Width()
	if width <= 0 {
		return 0
	}
	dist := 0.0
	switch {
	case target < g.Start:
		dist = g.Start - target
	case target > g.End:
		dist = target - g.End
	}
	proximity := 1.0
	if params.SearchWindow > 0 {
		proximity = math.Max(0, 1-dist/params.SearchWindow)
	}
	widthScore := 1.0
	if params.WidthSaturation > 0 {
		widthScore = width / (width + params.WidthSaturation)
	}
	return proximity * widthScore
}

// BestGap returns the highest scoring gap. Ties go to the earlier gap.
func BestGap(gaps []Gap, target float64, params Params) (Gap, bool) {
	var best Gap
	bestScore := 0.0
	found := false
	for _, g := range gaps {
		if score := ScoreGap(g, target, params); score > bestScore+epsilon {
			best, bestScore, found = g, score, true
		}
	}
	return best, found
}

// SplitPoint picks the point nearest target inside the gap, kept a small
// margin away from the surrounding speech.
func SplitPoint(g Gap, target float64) float64 {
	margin := math.Min(g.Width()/4, 0.25)
	return math.Min(math.Max(target, g.Start+margin), g.End-margin)
}
