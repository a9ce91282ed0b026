package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/transcript"
)

type mergingStage struct {
	opts transcript.MergeOptions
}

func (s *mergingStage) SchemaVersion() int { return mergingSchema }

func (s *mergingStage) Execute(_ context.Context, env *pipeline.Env) (any, error) {
	planned, err := pipeline.OutputAs[ChunkingResult](env.Outputs, config.StageChunking)
	if err != nil {
		return nil, err
	}
	transcribed, err := pipeline.OutputAs[TranscriptionResult](env.Outputs, config.StageTranscription)
	if err != nil {
		return nil, err
	}

	global := make([]transcript.ChunkTranscript, len(transcribed.Chunks))
	for i, c := range transcribed.Chunks {
		global[i] = c.Globalize()
	}
	merged, err := transcript.NewMerger(s.opts, env.Logger).Merge(global, planned.Overlap)
	if err != nil {
		return nil, err
	}

	strategies := make(map[transcript.Strategy]int)
	for _, p := range merged.Pairs {
		strategies[p.Strategy]++
	}
	env.Logger.Info("transcript merged",
		logging.Int("segment_count", len(merged.Segments)),
		logging.Int("boundary_count", len(merged.Pairs)),
		logging.Int("lcs_boundaries", strategies[transcript.StrategyLCS]),
		logging.Int("fallback_boundaries", strategies[transcript.StrategyTime]+strategies[transcript.StrategyNaive]),
		logging.Int("violation_count", len(merged.Violations)),
	)
	if len(merged.Segments) == 0 {
		merged.Segments = []transcript.Segment{}
		logging.WarnWithContext(env.Logger, "transcript is empty", "transcript_empty",
			logging.String(logging.FieldErrorHint, "check the transcription engine output for these chunks"),
			logging.String(logging.FieldImpact, "exported files will contain no text"),
		)
	}
	return MergeResult{Segments: merged.Segments, Pairs: merged.Pairs, Violations: merged.Violations}, nil
}

func (s *mergingStage) Decode(raw json.RawMessage) (any, error) {
	result, err := decodeAs[MergeResult](raw)
	if err != nil {
		return nil, err
	}
	if result.Segments == nil {
		return nil, fmt.Errorf("segments missing")
	}
	return result, nil
}
