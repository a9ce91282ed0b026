package transcription

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"scribe/internal/audio"
	"scribe/internal/services"
	"scribe/internal/services/whisperx"
	"scribe/internal/transcript"
)

// fileTranscriber is the part of whisperx.Service the adapter needs.
type fileTranscriber interface {
	TranscribeFile(ctx context.Context, source, outputDir string) ([]whisperx.Segment, error)
}

// WhisperX transcribes chunk files with the WhisperX CLI.
type WhisperX struct {
	service fileTranscriber
	workDir string
}

// NewWhisperX returns an adapter that writes WhisperX JSON under workDir.
func NewWhisperX(service *whisperx.Service, workDir string) *WhisperX {
	return &WhisperX{service: service, workDir: workDir}
}

// Transcribe runs WhisperX on the chunk's WAV file.
func (w *WhisperX) Transcribe(ctx context.Context, chunk audio.Chunk) (transcript.ChunkTranscript, error) {
	if strings.TrimSpace(chunk.Path) == "" {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrValidation, "transcription", "whisperx",
			fmt.Sprintf("chunk %d has no audio file", chunk.Index), nil)
	}
	outDir := filepath.Join(w.workDir, fmt.Sprintf("whisperx_%04d", chunk.Index))
	raw, err := w.service.TranscribeFile(ctx, chunk.Path, outDir)
	if err != nil {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrExternalTool, "transcription", "whisperx",
			fmt.Sprintf("chunk %d", chunk.Index), err)
	}
	segments := make([]transcript.Segment, 0, len(raw))
	for _, seg := range raw {
		segments = append(segments, transcript.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return localize(chunk, segments), nil
}
