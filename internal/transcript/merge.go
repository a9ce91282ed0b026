package transcript

import (
	"fmt"
	"log/slog"
	"math"

	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/textutil"
)

// maxAlignCells bounds the LCS table; larger overlaps use the time split.
const maxAlignCells = 4_000_000

// Strategy names how a chunk pair was reconciled.
type Strategy string

const (
	StrategySingle   Strategy = "single"
	StrategyAdjacent Strategy = "adjacent"
	StrategyLCS      Strategy = "lcs"
	StrategyTime     Strategy = "time"
	StrategyNaive    Strategy = "naive"
)

// MergeOptions tunes overlap reconciliation.
type MergeOptions struct {
	// MinMatchTokens is the LCS length needed to trust an alignment, capped
	// by the shorter side's token count.
	MinMatchTokens int
	// MinMatchRatio is the fraction of the shorter side the LCS must cover.
	MinMatchRatio float64
	// SpliceTolerance is the slack in seconds allowed when checking that a
	// splice keeps segments ordered.
	SpliceTolerance float64
	// FailOnViolation turns ordering violations into an error.
	FailOnViolation bool
}

// DefaultMergeOptions returns conservative alignment thresholds.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{MinMatchTokens: 3, MinMatchRatio: 0.5, SpliceTolerance: 0.05}
}

// PairReport records what happened at one chunk boundary.
type PairReport struct {
	Left         int      `json:"left"`
	Right        int      `json:"right"`
	Strategy     Strategy `json:"strategy"`
	Matched      int      `json:"matched_tokens"`
	DroppedLeft  int      `json:"dropped_left"`
	DroppedRight int      `json:"dropped_right"`
}

// Merged is the reconciled transcript.
type Merged struct {
	Segments   []Segment    `json:"segments"`
	Pairs      []PairReport `json:"pairs,omitempty"`
	Violations []Violation  `json:"violations,omitempty"`
}

// Merger reconciles overlapping chunk transcripts.
type Merger struct {
	opts   MergeOptions
	logger *slog.Logger
}

// NewMerger constructs a merger. Zero-valued thresholds take defaults.
func NewMerger(opts MergeOptions, logger *slog.Logger) *Merger {
	def := DefaultMergeOptions()
	if opts.MinMatchTokens <= 0 {
		opts.MinMatchTokens = def.MinMatchTokens
	}
	if opts.MinMatchRatio <= 0 {
		opts.MinMatchRatio = def.MinMatchRatio
	}
	if opts.SpliceTolerance < 0 {
		opts.SpliceTolerance = 0
	}
	return &Merger{opts: opts, logger: logging.NewComponentLogger(logger, "merger")}
}

// Merge reconciles chunks, which must be in ascending chunk order with
// segment times already in recording time.
func (m *Merger) Merge(chunks []ChunkTranscript, overlap float64) (Merged, error) {
	var result Merged
	for i := 1; i < len(chunks); i++ {
		if chunks[i].ChunkIndex <= chunks[i-1].ChunkIndex {
			return result, services.Wrap(services.ErrValidation, "merging", "order",
				fmt.Sprintf("chunk %d follows chunk %d", chunks[i].ChunkIndex, chunks[i-1].ChunkIndex), nil)
		}
	}
	switch len(chunks) {
	case 0:
		return result, nil
	case 1:
		result.Segments = Clone(chunks[0].Segments)
		result.Pairs = []PairReport{{Left: chunks[0].ChunkIndex, Right: chunks[0].ChunkIndex, Strategy: StrategySingle}}
		return m.finish(result)
	}

	left := Clone(chunks[0].Segments)
	for i := 1; i < len(chunks); i++ {
		prev, next := chunks[i-1], chunks[i]
		right := chunks[i].Segments
		keepLeft, startRight, report := m.reconcile(prev, next, left, right, overlap)
		result.Segments = append(result.Segments, left[:keepLeft]...)
		result.Pairs = append(result.Pairs, report)
		left = Clone(right[startRight:])
	}
	result.Segments = append(result.Segments, left...)
	return m.finish(result)
}

func (m *Merger) finish(result Merged) (Merged, error) {
	result.Violations = Validate(result.Segments, m.opts.SpliceTolerance)
	if len(result.Violations) == 0 {
		return result, nil
	}
	err := &OrderingError{Violations: result.Violations}
	logging.WarnWithContext(m.logger, "merged transcript has ordering violations", "merge_violation",
		logging.Int("violation_count", len(result.Violations)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect per-chunk transcripts for malformed timestamps"),
		logging.String(logging.FieldImpact, "downstream consumers may see overlapping segments"),
	)
	if m.opts.FailOnViolation {
		return result, err
	}
	return result, nil
}

// reconcile decides how many of left's segments survive and where right's
// surviving segments begin.
func (m *Merger) reconcile(prev, next ChunkTranscript, left, right []Segment, overlap float64) (int, int, PairReport) {
	report := PairReport{Left: prev.ChunkIndex, Right: next.ChunkIndex}
	winStart := math.Max(next.StartTime, prev.EndTime-overlap)
	winEnd := math.Min(prev.EndTime, next.StartTime+overlap)

	finalize := func(keepLeft, startRight int, strategy Strategy) (int, int, PairReport) {
		report.Strategy = strategy
		report.DroppedLeft = len(left) - keepLeft
		report.DroppedRight = startRight
		return keepLeft, startRight, report
	}

	if overlap <= 0 || winEnd <= winStart || len(left) == 0 || len(right) == 0 {
		return finalize(len(left), 0, StrategyAdjacent)
	}

	if keepLeft, startRight, matched, ok := m.alignByWords(left, right, winStart, winEnd); ok {
		report.Matched = matched
		return finalize(keepLeft, startRight, StrategyLCS)
	}

	logging.WarnWithContext(m.logger, "no reliable word alignment in overlap; splitting by time", "merge_ambiguity",
		logging.Int("left_chunk", prev.ChunkIndex),
		logging.Int("right_chunk", next.ChunkIndex),
		logging.Float64("window_start", winStart),
		logging.Float64("window_end", winEnd),
		logging.String(logging.FieldErrorHint, "chunk edges may have cut words; check the overlap region"),
		logging.String(logging.FieldImpact, "boundary text chosen by timing instead of content"),
	)
	mid := (winStart + winEnd) / 2
	keepLeft := len(left)
	for i, seg := range left {
		if seg.Midpoint() > mid {
			keepLeft = i
			break
		}
	}
	startRight := len(right)
	for i, seg := range right {
		if seg.Midpoint() >= mid {
			startRight = i
			break
		}
	}
	if m.sane(left, right, keepLeft, startRight) {
		return finalize(keepLeft, startRight, StrategyTime)
	}

	logging.WarnWithContext(m.logger, "overlap could not be reconciled; concatenating chunks", "merge_naive",
		logging.Int("left_chunk", prev.ChunkIndex),
		logging.Int("right_chunk", next.ChunkIndex),
		logging.String(logging.FieldErrorHint, "per-chunk timestamps are likely malformed"),
		logging.String(logging.FieldImpact, "duplicated text may remain at this boundary"),
	)
	return finalize(len(left), 0, StrategyNaive)
}

type token struct {
	word  string
	owner int
}

func tokenize(segments []Segment, from, to int) []token {
	var out []token
	for i := from; i < to; i++ {
		for _, w := range textutil.Tokenize(segments[i].Text) {
			out = append(out, token{word: w, owner: i})
		}
	}
	return out
}

func (m *Merger) alignByWords(left, right []Segment, winStart, winEnd float64) (int, int, int, bool) {
	tailFrom := len(left)
	for i, seg := range left {
		if seg.End > winStart {
			tailFrom = i
			break
		}
	}
	headTo := 0
	for headTo < len(right) && right[headTo].Start < winEnd {
		headTo++
	}
	tail := tokenize(left, tailFrom, len(left))
	head := tokenize(right, 0, headTo)
	shorter := min(len(tail), len(head))
	if shorter == 0 || len(tail)*len(head) > maxAlignCells {
		return 0, 0, 0, false
	}

	pairs := lcs(tail, head)
	need := min(m.opts.MinMatchTokens, shorter)
	if len(pairs) < need || float64(len(pairs))/float64(shorter) < m.opts.MinMatchRatio {
		return 0, 0, len(pairs), false
	}

	first, last := pairs[0], pairs[len(pairs)-1]
	// Cut left at the first duplicated segment and take right from its copy.
	atFirst := [2]int{tail[first[0]].owner, head[first[1]].owner}
	// Keep left through the last duplicated segment and resume right after it.
	afterLast := [2]int{tail[last[0]].owner + 1, head[last[1]].owner + 1}

	candidates := [][2]int{atFirst, afterLast}
	leftStraddles := left[atFirst[0]].Start < winStart-m.opts.SpliceTolerance
	rightStraddles := right[afterLast[1]-1].End > winEnd+m.opts.SpliceTolerance
	if leftStraddles && !rightStraddles {
		candidates = [][2]int{afterLast, atFirst}
	}
	for _, c := range candidates {
		if m.sane(left, right, c[0], c[1]) {
			return c[0], c[1], len(pairs), true
		}
	}
	return 0, 0, len(pairs), false
}

// sane reports whether keeping left[:keepLeft] then right[startRight:]
// preserves ordering at the seam.
func (m *Merger) sane(left, right []Segment, keepLeft, startRight int) bool {
	if keepLeft == 0 || startRight >= len(right) {
		return true
	}
	a, b := left[keepLeft-1], right[startRight]
	return a.End <= b.Start+m.opts.SpliceTolerance && a.Start < b.Start
}

// lcs returns matched (tail, head) index pairs of a longest common
// subsequence, in ascending order.
func lcs(a, b []token) [][2]int {
	n, m := len(a), len(b)
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i].word == b[j].word {
				table[i][j] = table[i+1][j+1] + 1
			} else {
				table[i][j] = max(table[i+1][j], table[i][j+1])
			}
		}
	}
	pairs := make([][2]int, 0, table[0][0])
	for i, j := 0, 0; i < n && j < m; {
		switch {
		case a[i].word == b[j].word:
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}
