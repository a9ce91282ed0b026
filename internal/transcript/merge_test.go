package transcript

import (
	"errors"
	"strings"
	"testing"

	"scribe/internal/services"
)

func newTestMerger(opts MergeOptions) *Merger {
	return NewMerger(opts, nil)
}

func TestMergeSingleChunkIsUnchanged(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 2, Text: "hello there"},
		{Start: 2.5, End: 4, Text: "general greeting"},
	}
	merged, err := newTestMerger(DefaultMergeOptions()).Merge([]ChunkTranscript{{ChunkIndex: 0, EndTime: 4, Segments: segments}}, 5)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.Segments) != len(segments) {
		t.Fatalf("expected %d segments, got %d", len(segments), len(merged.Segments))
	}
	for i := range segments {
		if merged.Segments[i] != segments[i] {
			t.Fatalf("segment %d changed: %+v", i, merged.Segments[i])
		}
	}
	if merged.Pairs[0].Strategy != StrategySingle {
		t.Fatalf("unexpected strategy %q", merged.Pairs[0].Strategy)
	}
}

func TestMergeEmptyInput(t *testing.T) {
	merged, err := newTestMerger(DefaultMergeOptions()).Merge(nil, 5)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.Segments) != 0 {
		t.Fatalf("expected no segments, got %d", len(merged.Segments))
	}
}

func TestMergeKeepsStraddlingLeftSegment(t *testing.T) {
	chunks := []ChunkTranscript{
		{ChunkIndex: 0, StartTime: 0, EndTime: 62, Segments: []Segment{
			{Start: 0, End: 5, Text: "hello everyone and welcome"},
			{Start: 5.5, End: 20, Text: "today we talk about planning"},
			{Start: 57, End: 61.5, Text: "we should ship the release on Friday."},
		}},
		{ChunkIndex: 1, StartTime: 58, EndTime: 120, Segments: []Segment{
			{Start: 58.2, End: 61.4, Text: "ship the release on friday"},
			{Start: 62, End: 65, Text: "and then celebrate together"},
		}},
	}
	merged, err := newTestMerger(DefaultMergeOptions()).Merge(chunks, 4)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.Segments) != 4 {
		t.Fatalf("expected 4 segments, got %d: %+v", len(merged.Segments), merged.Segments)
	}
	if merged.Segments[2].Text != "we should ship the release on Friday." {
		t.Fatalf("straddling segment not kept: %+v", merged.Segments[2])
	}
	if merged.Segments[3].Start != 62 {
		t.Fatalf("expected right chunk to resume at 62, got %+v", merged.Segments[3])
	}
	text := strings.ToLower(Text(merged.Segments))
	if strings.Count(text, "friday") != 1 {
		t.Fatalf("overlap not de-duplicated: %q", text)
	}
	pair := merged.Pairs[0]
	if pair.Strategy != StrategyLCS || pair.Matched != 5 || pair.DroppedLeft != 0 || pair.DroppedRight != 1 {
		t.Fatalf("unexpected pair report %+v", pair)
	}
	if len(merged.Violations) != 0 {
		t.Fatalf("unexpected violations %+v", merged.Violations)
	}
}

func TestMergeTakesDuplicateFromRightChunk(t *testing.T) {
	chunks := []ChunkTranscript{
		{ChunkIndex: 0, StartTime: 0, EndTime: 62, Segments: []Segment{
			{Start: 40, End: 57.5, Text: "so the plan is simple"},
			{Start: 58.1, End: 61.5, Text: "ship the release on friday"},
		}},
		{ChunkIndex: 1, StartTime: 58, EndTime: 120, Segments: []Segment{
			{Start: 58.2, End: 61.4, Text: "ship the release on friday"},
			{Start: 62, End: 65, Text: "and then celebrate"},
		}},
	}
	merged, err := newTestMerger(DefaultMergeOptions()).Merge(chunks, 4)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(merged.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %+v", merged.Segments)
	}
	if merged.Segments[1].Start != 58.2 {
		t.Fatalf("expected right chunk copy of overlap, got %+v", merged.Segments[1])
	}
	naive := len(chunks[0].Segments) + len(chunks[1].Segments)
	if len(merged.Segments) >= naive {
		t.Fatalf("merged output not shorter than naive concatenation")
	}
	for i := 1; i < len(merged.Segments); i++ {
		if merged.Segments[i].Start <= merged.Segments[i-1].Start || merged.Segments[i].Start < merged.Segments[i-1].End {
			t.Fatalf("segments out of order at %d: %+v", i, merged.Segments)
		}
	}
	if merged.Pairs[0].DroppedLeft != 1 || merged.Pairs[0].DroppedRight != 0 {
		t.Fatalf("unexpected pair report %+v", merged.Pairs[0])
	}
}

func TestMergeFallsBackToTimeSplit(t *testing.T) {
	chunks := []ChunkTranscript{
		{ChunkIndex: 0, StartTime: 0, EndTime: 62, Segments: []Segment{
			{Start: 0, End: 50, Text: "alpha beta"},
			{Start: 58.5, End: 62, Text: "completely different words here"},
		}},
		{ChunkIndex: 1, StartTime: 58, EndTime: 120, Segments: []Segment{
			{Start: 58.3, End: 59.5, Text: "nothing matches at all"},
			{Start: 60.5, End: 63, Text: "zebra yak xylophone"},
		}},
	}
	merged, err := newTestMerger(DefaultMergeOptions()).Merge(chunks, 4)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.Pairs[0].Strategy != StrategyTime {
		t.Fatalf("expected time strategy, got %+v", merged.Pairs[0])
	}
	got := Text(merged.Segments)
	if got != "alpha beta zebra yak xylophone" {
		t.Fatalf("unexpected merged text %q", got)
	}
	if len(merged.Violations) != 0 {
		t.Fatalf("unexpected violations %+v", merged.Violations)
	}
}

func TestMergeNaiveConcatenationReportsViolations(t *testing.T) {
	chunks := []ChunkTranscript{
		{ChunkIndex: 0, StartTime: 0, EndTime: 62, Segments: []Segment{
			{Start: 55, End: 61.9, Text: "one two three"},
		}},
		{ChunkIndex: 1, StartTime: 58, EndTime: 120, Segments: []Segment{
			{Start: 58, End: 59, Text: "four"},
			{Start: 59.8, End: 61, Text: "six"},
		}},
	}
	merged, err := newTestMerger(DefaultMergeOptions()).Merge(chunks, 4)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if merged.Pairs[0].Strategy != StrategyNaive {
		t.Fatalf("expected naive strategy, got %+v", merged.Pairs[0])
	}
	if len(merged.Segments) != 3 {
		t.Fatalf("expected all segments kept, got %+v", merged.Segments)
	}
	if len(merged.Violations) == 0 {
		t.Fatal("expected ordering violations to be reported")
	}

	opts := DefaultMergeOptions()
	opts.FailOnViolation = true
	_, err = newTestMerger(opts).Merge(chunks, 4)
	var orderErr *OrderingError
	if !errors.As(err, &orderErr) {
		t.Fatalf("expected OrderingError, got %v", err)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation classification, got %v", err)
	}
}

func TestMergeAdjacentChunksConcatenate(t *testing.T) {
	chunks := []ChunkTranscript{
		{ChunkIndex: 0, StartTime: 0, EndTime: 60, Segments: []Segment{{Start: 1, End: 59, Text: "first"}}},
		{ChunkIndex: 2, StartTime: 60, EndTime: 90, Segments: []Segment{{Start: 61, End: 70, Text: "second"}}},
	}
	merged, err := newTestMerger(DefaultMergeOptions()).Merge(chunks, 5)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if Text(merged.Segments) != "first second" {
		t.Fatalf("unexpected text %q", Text(merged.Segments))
	}
	if merged.Pairs[0].Strategy != StrategyAdjacent {
		t.Fatalf("expected adjacent strategy, got %+v", merged.Pairs[0])
	}
}

func TestMergeRejectsUnorderedChunks(t *testing.T) {
	chunks := []ChunkTranscript{
		{ChunkIndex: 1, StartTime: 55, EndTime: 120},
		{ChunkIndex: 0, StartTime: 0, EndTime: 60},
	}
	_, err := newTestMerger(DefaultMergeOptions()).Merge(chunks, 5)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLCSFindsLongestSubsequence(t *testing.T) {
	toTokens := func(words ...string) []token {
		out := make([]token, len(words))
		for i, w := range words {
			out[i] = token{word: w}
		}
		return out
	}
	pairs := lcs(toTokens("a", "b", "c", "d", "e"), toTokens("x", "b", "c", "y", "e"))
	if len(pairs) != 3 {
		t.Fatalf("expected 3 matches, got %v", pairs)
	}
	if pairs[0] != [2]int{1, 1} || pairs[2] != [2]int{4, 4} {
		t.Fatalf("unexpected alignment %v", pairs)
	}
}
