package stages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"scribe/internal/audio"
	"scribe/internal/chunking"
	"scribe/internal/export"
	"scribe/internal/transcript"
)

// Schema versions per stage payload.
const (
	inspectSchema        = 1
	chunkingSchema       = 1
	transcriptionSchema  = 1
	mergingSchema        = 1
	diarizationSchema    = 1
	classificationSchema = 1
	exportSchema         = 1
)

// InspectResult describes the source recording.
type InspectResult struct {
	Source       string  `json:"source"`
	SourceDigest string  `json:"source_digest"`
	SourceSize   int64   `json:"source_size"`
	AudioPath    string  `json:"audio_path"`
	Normalized   bool    `json:"normalized"`
	SampleRate   int     `json:"sample_rate"`
	Channels     int     `json:"channels"`
	Duration     float64 `json:"duration_seconds"`
}

func (r InspectResult) ArtifactPaths() []string { return []string{r.AudioPath} }

// ChunkFile is one chunk written to the run directory.
type ChunkFile struct {
	Index      int                `json:"index"`
	Start      float64            `json:"start"`
	End        float64            `json:"end"`
	Split      chunking.SplitKind `json:"split"`
	SampleRate int                `json:"sample_rate"`
	Path       string             `json:"path"`
}

// ChunkingResult is the planned and written chunk list.
type ChunkingResult struct {
	MaxChunk float64     `json:"max_chunk_seconds"`
	Overlap  float64     `json:"overlap_seconds"`
	Chunks   []ChunkFile `json:"chunks"`
}

func (r ChunkingResult) ArtifactPaths() []string {
	paths := make([]string, len(r.Chunks))
	for i, c := range r.Chunks {
		paths[i] = c.Path
	}
	return paths
}

// AudioChunks returns the chunk list without sample buffers.
func (r ChunkingResult) AudioChunks() []audio.Chunk {
	out := make([]audio.Chunk, len(r.Chunks))
	for i, c := range r.Chunks {
		out[i] = audio.Chunk{
			Index:      c.Index,
			StartTime:  c.Start,
			EndTime:    c.End,
			SampleRate: c.SampleRate,
			Path:       c.Path,
		}
	}
	return out
}

func (r ChunkingResult) validate() error {
	if len(r.Chunks) == 0 {
		return errors.New("no chunks")
	}
	for i := 1; i < len(r.Chunks); i++ {
		if r.Chunks[i].Index <= r.Chunks[i-1].Index || r.Chunks[i].Start < r.Chunks[i-1].Start {
			return fmt.Errorf("chunk %d out of order", r.Chunks[i].Index)
		}
	}
	return nil
}

// TranscriptionResult holds one chunk-local transcript per chunk, in chunk
// order.
type TranscriptionResult struct {
	Engine   string                       `json:"engine"`
	Language string                       `json:"language,omitempty"`
	Chunks   []transcript.ChunkTranscript `json:"chunks"`
}

// SegmentCount returns the number of segments across all chunks.
func (r TranscriptionResult) SegmentCount() int {
	n := 0
	for _, c := range r.Chunks {
		n += len(c.Segments)
	}
	return n
}

// MergeResult is the single reconciled transcript in recording time.
type MergeResult struct {
	Segments   []transcript.Segment    `json:"segments"`
	Pairs      []transcript.PairReport `json:"pairs,omitempty"`
	Violations []transcript.Violation  `json:"violations,omitempty"`
}

// DiarizationResult carries speaker-labelled segments.
type DiarizationResult struct {
	Segments []transcript.Segment `json:"segments"`
	Speakers []string             `json:"speakers,omitempty"`
	Degraded bool                 `json:"degraded,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

// ClassificationResult carries categorised segments.
type ClassificationResult struct {
	Segments []transcript.Segment `json:"segments"`
	Counts   map[string]int       `json:"counts,omitempty"`
	Degraded bool                 `json:"degraded,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

// ExportResult lists the rendered transcript files.
type ExportResult struct {
	Dir      string                 `json:"dir"`
	Files    []string               `json:"files"`
	Degraded []export.DegradedStage `json:"degraded,omitempty"`
	Skipped  bool                   `json:"skipped,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
}

func (r ExportResult) ArtifactPaths() []string { return r.Files }

// decodeAs strictly decodes a payload; unknown fields mean the payload was
// written by a different shape and must not be trusted.
func decodeAs[T any](raw json.RawMessage) (T, error) {
	var out T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	if dec.More() {
		return out, errors.New("trailing data after payload")
	}
	return out, nil
}
