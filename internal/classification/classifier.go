package classification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/services/llm"
	"scribe/internal/transcript"
)

// Classifier assigns a category to each segment. The returned slice has the
// same length and order as segments.
type Classifier interface {
	Classify(ctx context.Context, segments []transcript.Segment) ([]transcript.Segment, error)
}

// completer abstracts the LLM JSON-completion call for testability.
type completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DefaultBatchSize bounds how many segments go into one request.
const DefaultBatchSize = 40

// LLM classifies segments in batches through a chat-completions client.
type LLM struct {
	client     completer
	categories []string
	allowed    map[string]struct{}
	batchSize  int
	logger     *slog.Logger
}

// NewLLM returns an LLM classifier. Categories are matched case-insensitively.
func NewLLM(client completer, categories []string, batchSize int, logger *slog.Logger) (*LLM, error) {
	if client == nil {
		return nil, services.Wrap(services.ErrConfiguration, "classification", "init", "no llm client", nil)
	}
	allowed := make(map[string]struct{}, len(categories))
	var clean []string
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, dup := allowed[c]; dup {
			continue
		}
		allowed[c] = struct{}{}
		clean = append(clean, c)
	}
	if len(clean) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "classification", "init", "no categories configured", nil)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LLM{
		client:     client,
		categories: clean,
		allowed:    allowed,
		batchSize:  batchSize,
		logger:     logging.NewComponentLogger(logger, "classifier"),
	}, nil
}

// Compile-time check that the llm client satisfies completer.
var _ completer = (*llm.Client)(nil)

type labelResponse struct {
	Labels []struct {
		Index    int    `json:"index"`
		Category string `json:"category"`
	} `json:"labels"`
}

// Classify labels every segment. A segment the model skipped or gave an
// unknown category keeps transcript.Uncategorized. A failed request fails
// the whole call.
func (c *LLM) Classify(ctx context.Context, segments []transcript.Segment) ([]transcript.Segment, error) {
	out := transcript.Clone(segments)
	unlabelled := 0
	for start := 0; start < len(out); start += c.batchSize {
		end := min(start+c.batchSize, len(out))
		raw, err := c.client.CompleteJSON(ctx, SystemPrompt, buildUserPrompt(c.categories, out[start:end], start))
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "classification", "llm request",
				fmt.Sprintf("segments %d-%d", start, end-1), err)
		}
		var parsed labelResponse
		if err := llm.DecodeLLMJSON(raw, &parsed); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "classification", "decode response",
				fmt.Sprintf("segments %d-%d", start, end-1), err)
		}
		assigned := make(map[int]string, len(parsed.Labels))
		for _, label := range parsed.Labels {
			if label.Index < start || label.Index >= end {
				continue
			}
			category := strings.ToLower(strings.TrimSpace(label.Category))
			if _, ok := c.allowed[category]; !ok {
				continue
			}
			assigned[label.Index] = category
		}
		for i := start; i < end; i++ {
			if category, ok := assigned[i]; ok {
				out[i].Category = category
				continue
			}
			out[i].Category = transcript.Uncategorized
			unlabelled++
		}
	}
	if unlabelled > 0 {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "llm left segments unlabelled", "classification_partial",
			logging.Int("unlabelled_count", unlabelled),
			logging.Int("segment_count", len(out)),
			logging.String(logging.FieldImpact, "some segments are marked uncategorized"),
			logging.String(logging.FieldErrorHint, "try a stronger llm.model or a smaller classification.batch_size"),
		)
	}
	return out, nil
}

// Degrade returns a copy of segments with every category uncategorized.
func Degrade(segments []transcript.Segment) []transcript.Segment {
	out := transcript.Clone(segments)
	for i := range out {
		out[i].Category = transcript.Uncategorized
	}
	return out
}

// Counts tallies segments per category.
func Counts(segments []transcript.Segment) map[string]int {
	counts := make(map[string]int)
	for _, seg := range segments {
		category := seg.Category
		if category == "" {
			category = transcript.Uncategorized
		}
		counts[category]++
	}
	return counts
}
