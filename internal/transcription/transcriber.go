package transcription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scribe/internal/audio"
	"scribe/internal/services"
	"scribe/internal/transcript"
)

// Transcriber converts one chunk of audio into text segments whose times are
// relative to the start of the chunk.
type Transcriber interface {
	Transcribe(ctx context.Context, chunk audio.Chunk) (transcript.ChunkTranscript, error)
}

// Func adapts a function to the Transcriber interface.
type Func func(ctx context.Context, chunk audio.Chunk) (transcript.ChunkTranscript, error)

// Transcribe calls f.
func (f Func) Transcribe(ctx context.Context, chunk audio.Chunk) (transcript.ChunkTranscript, error) {
	return f(ctx, chunk)
}

type timeoutTranscriber struct {
	next    Transcriber
	timeout time.Duration
}

// WithTimeout bounds every call to next. An expired deadline is reported as
// services.ErrTimeout. A non-positive timeout returns next unchanged.
func WithTimeout(next Transcriber, timeout time.Duration) Transcriber {
	if timeout <= 0 {
		return next
	}
	return &timeoutTranscriber{next: next, timeout: timeout}
}

func (t *timeoutTranscriber) Transcribe(ctx context.Context, chunk audio.Chunk) (transcript.ChunkTranscript, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	result, err := t.next.Transcribe(callCtx, chunk)
	if err == nil {
		return result, nil
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrTimeout, "transcription", "transcribe chunk",
			fmt.Sprintf("chunk %d exceeded %s", chunk.Index, t.timeout), err)
	}
	return transcript.ChunkTranscript{}, err
}

// localize builds a ChunkTranscript for chunk from engine segments.
func localize(chunk audio.Chunk, segments []transcript.Segment) transcript.ChunkTranscript {
	return transcript.ChunkTranscript{
		ChunkIndex: chunk.Index,
		StartTime:  chunk.StartTime,
		EndTime:    chunk.EndTime,
		Segments:   segments,
	}
}
