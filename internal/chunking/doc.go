// Package chunking plans where a long recording is cut into overlapping
// chunks and slices those chunks out of the source audio.
//
// Plan walks the timeline in steps of the maximum chunk length. Around each
// target it asks a SpeechFinder for speech, scores the silence gaps between
// speech by proximity to the target and by width, and splits inside the best
// gap. With no gap it cuts exactly at the target. Each chunk after the first
// starts Overlap seconds before the previous split, and no chunk is longer
// than MaxChunk+Overlap. Chunks the finder reports as speechless are dropped,
// so a silent recording plans to zero chunks.
//
// Plan is a pure function of its inputs and the finder's answers.
package chunking
