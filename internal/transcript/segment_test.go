package transcript

import "testing"

func TestGlobalizeShiftsTimes(t *testing.T) {
	chunk := ChunkTranscript{ChunkIndex: 1, StartTime: 55, EndTime: 120, Segments: []Segment{
		{Start: 0.5, End: 2, Text: "  hello "},
		{Start: 3, End: 4, Text: "   "},
	}}
	got := chunk.Globalize()
	if len(got.Segments) != 1 {
		t.Fatalf("expected empty segment dropped, got %+v", got.Segments)
	}
	seg := got.Segments[0]
	if seg.Start != 55.5 || seg.End != 57 || seg.Text != "hello" {
		t.Fatalf("unexpected globalized segment %+v", seg)
	}
	if chunk.Segments[0].Start != 0.5 {
		t.Fatal("Globalize mutated its input")
	}
}

func TestValidateReportsEachViolation(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 2},
		{Start: 1.5, End: 3},
		{Start: 1.5, End: 1},
	}
	violations := Validate(segments, 0)
	kinds := map[string]int{}
	for _, v := range violations {
		kinds[v.Kind]++
	}
	if kinds[ViolationOverlap] != 2 || kinds[ViolationNonIncrease] != 1 || kinds[ViolationInverted] != 1 {
		t.Fatalf("unexpected violations %+v", violations)
	}
}

func TestValidateAcceptsOrderedSegments(t *testing.T) {
	segments := []Segment{{Start: 0, End: 1}, {Start: 1, End: 2}, {Start: 2.5, End: 3}}
	if v := Validate(segments, 0); len(v) != 0 {
		t.Fatalf("unexpected violations %+v", v)
	}
}
