package chunking

import (
	"context"
	"errors"
	"math"
	"testing"

	"scribe/internal/vad"
)

// scriptedFinder reports speech everywhere except the listed silences.
type scriptedFinder struct {
	duration float64
	silences []Gap
	calls    int
}

func (f *scriptedFinder) SpeechIn(_ context.Context, start, end float64) ([]vad.SpeechInterval, error) {
	f.calls++
	var out []vad.SpeechInterval
	cursor := start
	for _, s := range f.silences {
		if s.End <= start || s.Start >= end {
			continue
		}
		if s.Start > cursor {
			out = append(out, vad.SpeechInterval{Start: cursor, End: s.Start})
		}
		cursor = math.Max(cursor, s.End)
	}
	if end > cursor {
		out = append(out, vad.SpeechInterval{Start: cursor, End: end})
	}
	return out, nil
}

type silentFinder struct{}

func (silentFinder) SpeechIn(context.Context, float64, float64) ([]vad.SpeechInterval, error) {
	return nil, nil
}

type failingFinder struct{}

func (failingFinder) SpeechIn(context.Context, float64, float64) ([]vad.SpeechInterval, error) {
	return nil, errors.New("probe offline")
}

func testParams() Params {
	return Params{MaxChunk: 60, Overlap: 2, SearchWindow: 10, WidthSaturation: 0.5}
}

func assertChain(t *testing.T, got []Boundary, params Params, duration float64) {
	t.Helper()
	if len(got) == 0 {
		t.Fatal("expected boundaries")
	}
	if got[0].Start != 0 {
		t.Fatalf("first chunk must start at 0, got %f", got[0].Start)
	}
	if last := got[len(got)-1]; math.Abs(last.End-duration) > 1e-9 || last.Split != SplitFinal {
		t.Fatalf("last chunk must end at duration as final, got %+v", last)
	}
	for i, b := range got {
		if b.Index != i {
			t.Fatalf("chunk %d has index %d", i, b.Index)
		}
		if b.Duration() > params.MaxChunk+params.Overlap+1e-9 {
			t.Fatalf("chunk %d too long: %f", i, b.Duration())
		}
		if i > 0 {
			prev := got[i-1]
			if math.Abs((prev.End-b.Start)-params.Overlap) > 1e-9 {
				t.Fatalf("chunk %d overlap = %f, want %f", i, prev.End-b.Start, params.Overlap)
			}
		}
	}
}

func TestPlanShortAudioSingleChunk(t *testing.T) {
	params := testParams()
	for _, d := range []float64{0.5, 30, 60} {
		finder := &scriptedFinder{duration: d}
		got, err := Plan(context.Background(), d, finder, params)
		if err != nil {
			t.Fatalf("Plan(%f): %v", d, err)
		}
		if len(got) != 1 || got[0].Start != 0 || got[0].End != d {
			t.Fatalf("Plan(%f) = %+v, want single [0,%f]", d, got, d)
		}
	}
}

func TestPlanZeroDuration(t *testing.T) {
	got, err := Plan(context.Background(), 0, &scriptedFinder{}, testParams())
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty plan, got %+v err=%v", got, err)
	}
}

func TestPlanSilenceProducesNoChunks(t *testing.T) {
	got, err := Plan(context.Background(), 30, silentFinder{}, testParams())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected zero chunks for silence, got %+v", got)
	}
}

func TestPlanContinuousSpeechHardSplits(t *testing.T) {
	params := testParams()
	for _, d := range []float64{150, 180, 181, 359.5} {
		got, err := Plan(context.Background(), d, &scriptedFinder{duration: d}, params)
		if err != nil {
			t.Fatalf("Plan(%f): %v", d, err)
		}
		want := int(math.Ceil(d / params.MaxChunk))
		if len(got) != want {
			t.Fatalf("Plan(%f) produced %d chunks, want %d: %+v", d, len(got), want, got)
		}
		for i, b := range got[:len(got)-1] {
			if b.Split != SplitHard || b.End != float64(i+1)*params.MaxChunk {
				t.Fatalf("chunk %d expected hard split at %f, got %+v", i, float64(i+1)*params.MaxChunk, b)
			}
		}
		assertChain(t, got, params, d)
	}
}

func TestPlanSplitsAtSilenceNearMarks(t *testing.T) {
	params := testParams()
	d := 3 * params.MaxChunk
	finder := &scriptedFinder{duration: d, silences: []Gap{{Start: 58.5, End: 60.5}, {Start: 119.5, End: 122}}}
	got, err := Plan(context.Background(), d, finder, params)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected three chunks, got %+v", got)
	}
	for i, mark := range []float64{60, 120} {
		b := got[i]
		if b.Split != SplitSilence {
			t.Fatalf("chunk %d expected silence split, got %+v", i, b)
		}
		if math.Abs(b.End-mark) > params.SearchWindow {
			t.Fatalf("chunk %d split %f not within window of %f", i, b.End, mark)
		}
		gap := finder.silences[i]
		if b.End <= gap.Start || b.End >= gap.End {
			t.Fatalf("chunk %d split %f not inside silence %+v", i, b.End, gap)
		}
	}
	assertChain(t, got, params, d)
}

func TestPlanPrefersWideGapOverSliver(t *testing.T) {
	params := testParams()
	d := 150.0
	finder := &scriptedFinder{duration: d, silences: []Gap{{Start: 55, End: 57}, {Start: 59.98, End: 60.02}}}
	got, err := Plan(context.Background(), d, finder, params)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got[0].Split != SplitSilence || got[0].End != 56.75 {
		t.Fatalf("expected split inside the wide gap at 56.75, got %+v", got[0])
	}
	assertChain(t, got, params, d)
}

func TestPlanCentredSilenceSplitsOnTarget(t *testing.T) {
	params := testParams()
	d := 3 * params.MaxChunk
	finder := &scriptedFinder{duration: d, silences: []Gap{{Start: 59, End: 61}, {Start: 119, End: 121}}}
	got, err := Plan(context.Background(), d, finder, params)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(got) != 3 || got[0].End != 60 || got[1].End != 120 {
		t.Fatalf("expected splits exactly at 60 and 120, got %+v", got)
	}
}

func TestPlanDropsSpeechlessChunks(t *testing.T) {
	params := testParams()
	d := 3 * params.MaxChunk
	// Everything from 50s to 130s is silent, so the middle chunk has no speech.
	finder := &scriptedFinder{duration: d, silences: []Gap{{Start: 50, End: 130}}}
	got, err := Plan(context.Background(), d, finder, params)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for i, b := range got {
		if b.Index != i {
			t.Fatalf("expected renumbered indexes, got %+v", got)
		}
		if b.Start >= 50 && b.End <= 130 {
			t.Fatalf("speechless chunk kept: %+v", b)
		}
	}
	if len(got) < 2 {
		t.Fatalf("expected speech-bearing chunks on both sides, got %+v", got)
	}
}

func TestPlanPropagatesProbeErrors(t *testing.T) {
	if _, err := Plan(context.Background(), 200, failingFinder{}, testParams()); err == nil {
		t.Fatal("expected probe error")
	}
}

func TestPlanRejectsInvalidParams(t *testing.T) {
	bad := []Params{
		{MaxChunk: 0},
		{MaxChunk: 10, Overlap: 10},
		{MaxChunk: 10, Overlap: 1, SearchWindow: 5},
		{MaxChunk: 10, Overlap: -1},
	}
	for _, p := range bad {
		if _, err := Plan(context.Background(), 100, silentFinder{}, p); err == nil {
			t.Fatalf("expected validation error for %+v", p)
		}
	}
}

func TestPlanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Plan(ctx, 500, &scriptedFinder{duration: 500}, testParams()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScoreGapPrefersWideGapSlightlyOffTarget(t *testing.T) {
	params := testParams()
	thin := Gap{Start: 59.95, End: 60.05}
	wide := Gap{Start: 62, End: 64}
	if ScoreGap(wide, 60, params) <= ScoreGap(thin, 60, params) {
		t.Fatalf("expected wide gap to outscore thin on-target gap")
	}
	far := Gap{Start: 69, End: 71}
	near := Gap{Start: 60.5, End: 62.5}
	if ScoreGap(near, 60, params) <= ScoreGap(far, 60, params) {
		t.Fatalf("expected nearer gap of equal width to win")
	}
	if ScoreGap(Gap{Start: 5, End: 5}, 5, params) != 0 {
		t.Fatal("zero-width gap must score zero")
	}
}

func TestSilenceGaps(t *testing.T) {
	speech := []vad.SpeechInterval{{Start: 14, End: 16}, {Start: 11, End: 12}, {Start: 11.5, End: 13}}
	gaps := SilenceGaps(speech, 10, 20)
	want := []Gap{{10, 11}, {13, 14}, {16, 20}}
	if len(gaps) != len(want) {
		t.Fatalf("SilenceGaps = %+v, want %+v", gaps, want)
	}
	for i := range want {
		if gaps[i] != want[i] {
			t.Fatalf("gap %d = %+v, want %+v", i, gaps[i], want[i])
		}
	}
	if got := SilenceGaps(nil, 0, 5); len(got) != 1 || got[0] != (Gap{0, 5}) {
		t.Fatalf("expected whole window gap, got %+v", got)
	}
}

func TestSplitPointStaysInsideGap(t *testing.T) {
	if got := SplitPoint(Gap{Start: 10, End: 12}, 11); got != 11 {
		t.Fatalf("expected target inside gap, got %f", got)
	}
	if got := SplitPoint(Gap{Start: 10, End: 12}, 20); got != 11.75 {
		t.Fatalf("expected clamp with margin, got %f", got)
	}
	if got := SplitPoint(Gap{Start: 10, End: 10.5}, 0); got != 10.125 {
		t.Fatalf("expected quarter-width margin, got %f", got)
	}
}
