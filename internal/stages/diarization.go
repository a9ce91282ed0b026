package stages

import (
	"context"
	"encoding/json"
	"time"

	"scribe/internal/config"
	"scribe/internal/diarization"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/services"
	"scribe/internal/transcript"
)

type diarizationStage struct {
	diarizer diarization.Diarizer
	timeout  time.Duration
}

func (s *diarizationStage) SchemaVersion() int { return diarizationSchema }

func (s *diarizationStage) Execute(ctx context.Context, env *pipeline.Env) (any, error) {
	if s.diarizer == nil {
		return nil, services.Wrap(services.ErrConfiguration, config.StageDiarization, "init", "no diarizer configured", nil)
	}
	source, err := pipeline.OutputAs[InspectResult](env.Outputs, config.StageInspect)
	if err != nil {
		return nil, err
	}
	merged, err := pipeline.OutputAs[MergeResult](env.Outputs, config.StageMerging)
	if err != nil {
		return nil, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	env.Tick("assigning speakers")
	segments, err := s.diarizer.Diarize(ctx, source.AudioPath, merged.Segments)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, services.Wrap(services.ErrTimeout, config.StageDiarization, "diarize",
				"exceeded "+s.timeout.String(), err)
		}
		return nil, err
	}
	if len(segments) != len(merged.Segments) {
		return nil, services.Wrap(services.ErrValidation, config.StageDiarization, "diarize",
			"diarizer changed the segment count", nil)
	}
	result := DiarizationResult{Segments: segments, Speakers: diarization.Speakers(segments)}
	env.Logger.Info("speakers assigned",
		logging.Int("speaker_count", len(result.Speakers)),
		logging.Int("segment_count", len(segments)),
	)
	return result, nil
}

// Degrade labels every merged segment with the unknown speaker.
func (s *diarizationStage) Degrade(env *pipeline.Env, cause error) any {
	merged, _ := pipeline.OutputAs[MergeResult](env.Outputs, config.StageMerging)
	return DiarizationResult{
		Segments: diarization.Degrade(merged.Segments),
		Degraded: true,
		Reason:   degradeReason(cause),
	}
}

func (s *diarizationStage) Decode(raw json.RawMessage) (any, error) {
	return decodeAs[DiarizationResult](raw)
}

// speakerSegments returns the most enriched segments available before
// classification.
func speakerSegments(outputs *pipeline.Outputs) ([]transcript.Segment, error) {
	if diarized, err := pipeline.OutputAs[DiarizationResult](outputs, config.StageDiarization); err == nil {
		return diarized.Segments, nil
	}
	merged, err := pipeline.OutputAs[MergeResult](outputs, config.StageMerging)
	if err != nil {
		return nil, err
	}
	return diarization.Degrade(merged.Segments), nil
}

func degradeReason(cause error) string {
	if cause == nil {
		return "disabled by configuration"
	}
	return services.Details(cause).Message
}
