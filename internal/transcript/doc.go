// Package transcript defines transcript segments and reconciles per-chunk
// transcripts into one timeline.
//
// Merger works pairwise, left to right. For each adjacent pair it aligns the
// words in the overlap window with a longest common subsequence and splices
// the two segment lists so the duplicated speech survives once. When the
// alignment is too weak it falls back to a midpoint split by time, and when
// neither produces an ordered result it concatenates the pair and logs a
// warning. Segment timestamps are never rewritten; Validate reports any
// ordering problems that remain.
package transcript
