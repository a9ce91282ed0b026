package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"scribe/internal/audio"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/transcript"
)

// Batch transcribes a chunk list with bounded concurrency.
type Batch struct {
	Transcriber Transcriber
	Concurrency int
	Logger      *slog.Logger
	// Progress, if set, is called after each chunk with the number done.
	Progress func(done, total int)
}

// Run transcribes every chunk and returns the transcripts in chunk order. The
// first failure cancels the remaining calls and is returned.
//
// Sample buffers are loaded from each chunk's WAV just before its call and
// released as soon as it returns.
func (b Batch) Run(ctx context.Context, chunks []audio.Chunk) ([]transcript.ChunkTranscript, error) {
	if b.Transcriber == nil {
		return nil, services.Wrap(services.ErrConfiguration, "transcription", "batch", "no transcriber configured", nil)
	}
	logger := b.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := max(b.Concurrency, 1)

	results := make([]transcript.ChunkTranscript, len(chunks))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range chunks {
		chunk := chunks[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chunkCtx := services.WithChunkIndex(gctx, chunk.Index)
			started := time.Now()
			result, err := b.transcribeOne(chunkCtx, chunk)
			if err != nil {
				return err
			}
			results[i] = result
			logging.WithContext(chunkCtx, logger).Debug("chunk transcribed",
				logging.Int("segment_count", len(result.Segments)),
				logging.Duration("chunk_duration", time.Since(started)),
			)

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if b.Progress != nil {
				b.Progress(n, len(chunks))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b Batch) transcribeOne(ctx context.Context, chunk audio.Chunk) (transcript.ChunkTranscript, error) {
	if chunk.Samples == nil && chunk.Path != "" {
		if err := audio.LoadChunkSamples(&chunk); err != nil {
			return transcript.ChunkTranscript{}, services.Wrap(services.ErrValidation, "transcription", "load chunk",
				fmt.Sprintf("chunk %d", chunk.Index), err)
		}
	}
	defer chunk.Release()
	if err := chunk.Validate(); err != nil {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrValidation, "transcription", "validate chunk", "", err)
	}

	result, err := b.Transcriber.Transcribe(ctx, chunk)
	if err != nil {
		return transcript.ChunkTranscript{}, err
	}
	if result.ChunkIndex != chunk.Index {
		return transcript.ChunkTranscript{}, services.Wrap(services.ErrValidation, "transcription", "transcribe chunk",
			fmt.Sprintf("engine answered for chunk %d, asked for %d", result.ChunkIndex, chunk.Index), nil)
	}
	return result, nil
}
