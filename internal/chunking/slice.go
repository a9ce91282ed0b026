package chunking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"scribe/internal/audio"
)

// ChunkFileName returns the file name used for chunk index i.
func ChunkFileName(i int) string {
	return fmt.Sprintf("chunk_%04d.wav", i)
}

// WriteChunks reads each boundary from src, writes it as a WAV file under dir,
// and returns the chunk metadata with sample buffers already released. Only
// one chunk's samples are resident at a time. progress, when set, is called
// after each chunk is written.
func WriteChunks(ctx context.Context, src audio.Source, bounds []Boundary, dir string, progress func(done, total int)) ([]audio.Chunk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure chunk dir: %w", err)
	}
	chunks := make([]audio.Chunk, 0, len(bounds))
	for i, b := range bounds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf, err := src.ReadRange(b.Start, b.End)
		if err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", b.Index, err)
		}
		chunk := audio.Chunk{
			Index:      b.Index,
			StartTime:  b.Start,
			EndTime:    b.End,
			SampleRate: buf.SampleRate,
			Samples:    buf.Samples,
			Path:       filepath.Join(dir, ChunkFileName(b.Index)),
		}
		if err := chunk.Validate(); err != nil {
			return nil, err
		}
		if err := audio.WriteWAV(chunk.Path, buf); err != nil {
			return nil, fmt.Errorf("write chunk %d: %w", b.Index, err)
		}
		chunk.Release()
		chunks = append(chunks, chunk)
		if progress != nil {
			progress(i+1, len(bounds))
		}
	}
	return chunks, nil
}
