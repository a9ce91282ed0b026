package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"scribe/internal/config"
	"scribe/internal/language"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/transcription"
)

type transcriptionStage struct {
	engine      string
	language    string
	transcriber transcription.Transcriber
	concurrency int
}

func (s *transcriptionStage) SchemaVersion() int { return transcriptionSchema }

func (s *transcriptionStage) Execute(ctx context.Context, env *pipeline.Env) (any, error) {
	planned, err := pipeline.OutputAs[ChunkingResult](env.Outputs, config.StageChunking)
	if err != nil {
		return nil, err
	}
	batch := transcription.Batch{
		Transcriber: s.transcriber,
		Concurrency: s.concurrency,
		Logger:      env.Logger,
		Progress: func(done, total int) {
			env.Progress(done, total, "transcribing chunks")
		},
	}
	chunks, err := batch.Run(ctx, planned.AudioChunks())
	if err != nil {
		return nil, err
	}
	result := TranscriptionResult{Engine: s.engine, Language: s.language, Chunks: chunks}
	env.Logger.Info("chunks transcribed",
		logging.Int("chunk_count", len(chunks)),
		logging.Int("segment_count", result.SegmentCount()),
		logging.String("engine", s.engine),
		logging.String("language", language.DisplayName(s.language)),
	)
	return result, nil
}

func (s *transcriptionStage) Decode(raw json.RawMessage) (any, error) {
	result, err := decodeAs[TranscriptionResult](raw)
	if err != nil {
		return nil, err
	}
	if len(result.Chunks) == 0 {
		return nil, fmt.Errorf("no chunk transcripts")
	}
	return result, nil
}
