package stages

import (
	"context"
	"encoding/json"
	"path/filepath"

	"scribe/internal/audio"
	"scribe/internal/chunking"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/services"
	"scribe/internal/vad"
)

const chunkDirName = "chunks"

type chunkingStage struct {
	params chunking.Params
	vad    vad.Config
}

func (s *chunkingStage) SchemaVersion() int { return chunkingSchema }

func (s *chunkingStage) Execute(ctx context.Context, env *pipeline.Env) (any, error) {
	source, err := pipeline.OutputAs[InspectResult](env.Outputs, config.StageInspect)
	if err != nil {
		return nil, err
	}
	wav, err := audio.OpenWAV(source.AudioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, config.StageChunking, "open audio", source.AudioPath, err)
	}
	defer wav.Close()

	env.Tick("planning chunk boundaries")
	probe := vad.RangeProbe{Source: wav, Detector: vad.NewEnergyDetector(s.vad)}
	bounds, err := chunking.Plan(ctx, wav.Duration(), probe, s.params)
	if err != nil {
		return nil, services.Wrap(services.ErrPlanning, config.StageChunking, "plan", "could not plan chunk boundaries", err)
	}
	if len(bounds) == 0 {
		return nil, services.Wrap(services.ErrPlanning, config.StageChunking, "plan",
			"no speech detected; nothing to transcribe (check the recording or lower vad.energy_threshold)", nil)
	}

	dir := filepath.Join(env.ArtifactDir, chunkDirName)
	chunks, err := chunking.WriteChunks(ctx, wav, bounds, dir, func(done, total int) {
		env.Progress(done, total, "writing chunks")
	})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, config.StageChunking, "write chunks", dir, err)
	}

	result := ChunkingResult{MaxChunk: s.params.MaxChunk, Overlap: s.params.Overlap, Chunks: make([]ChunkFile, len(chunks))}
	hard := 0
	for i, c := range chunks {
		result.Chunks[i] = ChunkFile{
			Index:      c.Index,
			Start:      c.StartTime,
			End:        c.EndTime,
			Split:      bounds[i].Split,
			SampleRate: c.SampleRate,
			Path:       c.Path,
		}
		if bounds[i].Split == chunking.SplitHard {
			hard++
		}
	}
	env.Logger.Info("chunks planned",
		logging.Int("chunk_count", len(result.Chunks)),
		logging.Int("hard_splits", hard),
		logging.Float64("duration_seconds", wav.Duration()),
	)
	return result, nil
}

func (s *chunkingStage) Decode(raw json.RawMessage) (any, error) {
	result, err := decodeAs[ChunkingResult](raw)
	if err != nil {
		return nil, err
	}
	if err := result.validate(); err != nil {
		return nil, err
	}
	return result, nil
}
