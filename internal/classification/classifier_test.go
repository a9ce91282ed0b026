package classification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"scribe/internal/services"
	"scribe/internal/transcript"
)

type scriptedCompleter struct {
	prompts []string
	answer  func(user string) (string, error)
}

func (s *scriptedCompleter) CompleteJSON(_ context.Context, system, user string) (string, error) {
	if system != SystemPrompt {
		return "", errors.New("unexpected system prompt")
	}
	s.prompts = append(s.prompts, user)
	return s.answer(user)
}

var indexLine = regexp.MustCompile(`(?m)^(\d+)`)

func labelEverything(category string) func(string) (string, error) {
	return func(user string) (string, error) {
		var parts []string
		for _, m := range indexLine.FindAllStringSubmatch(user, -1) {
			idx, _ := strconv.Atoi(m[1])
			parts = append(parts, fmt.Sprintf(`{"index":%d,"category":%q}`, idx, category))
		}
		return `{"labels":[` + strings.Join(parts, ",") + `]}`, nil
	}
}

func segments(n int) []transcript.Segment {
	out := make([]transcript.Segment, n)
	for i := range out {
		out[i] = transcript.Segment{Start: float64(i), End: float64(i) + 0.9, Text: fmt.Sprintf("segment %d", i)}
	}
	return out
}

func TestClassifyBatches(t *testing.T) {
	client := &scriptedCompleter{answer: labelEverything("Question")}
	c, err := NewLLM(client, []string{"question", "answer"}, 2, nil)
	if err != nil {
		t.Fatalf("NewLLM: %v", err)
	}
	out, err := c.Classify(context.Background(), segments(5))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(client.prompts) != 3 {
		t.Fatalf("requests = %d, want 3", len(client.prompts))
	}
	if !strings.Contains(client.prompts[2], "4: segment 4") {
		t.Fatalf("last batch prompt missing global index: %q", client.prompts[2])
	}
	for i, seg := range out {
		if seg.Category != "question" {
			t.Fatalf("segment %d category %q", i, seg.Category)
		}
	}
}

func TestClassifyUnknownAndMissingLabels(t *testing.T) {
	client := &scriptedCompleter{answer: func(string) (string, error) {
		return "```json\n{\"labels\":[{\"index\":0,\"category\":\"answer\"},{\"index\":1,\"category\":\"gossip\"},{\"index\":9,\"category\":\"answer\"}]}\n```", nil
	}}
	c, err := NewLLM(client, []string{"answer"}, 10, nil)
	if err != nil {
		t.Fatalf("NewLLM: %v", err)
	}
	out, err := c.Classify(context.Background(), segments(3))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := []string{"answer", transcript.Uncategorized, transcript.Uncategorized}
	for i, seg := range out {
		if seg.Category != want[i] {
			t.Fatalf("segment %d category %q, want %q", i, seg.Category, want[i])
		}
	}
}

func TestClassifyFailurePropagates(t *testing.T) {
	client := &scriptedCompleter{answer: func(string) (string, error) { return "", errors.New("http 500") }}
	c, _ := NewLLM(client, []string{"answer"}, 10, nil)
	if _, err := c.Classify(context.Background(), segments(2)); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestNewLLMValidation(t *testing.T) {
	if _, err := NewLLM(nil, []string{"a"}, 1, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := NewLLM(&scriptedCompleter{}, []string{" ", ""}, 1, nil); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDegradeAndCounts(t *testing.T) {
	segs := segments(3)
	segs[0].Category = "question"
	degraded := Degrade(segs)
	counts := Counts(degraded)
	if counts[transcript.Uncategorized] != 3 || len(counts) != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if segs[0].Category != "question" {
		t.Fatal("Degrade mutated its input")
	}
}
