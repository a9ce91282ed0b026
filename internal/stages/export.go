package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"scribe/internal/config"
	"scribe/internal/export"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/services"
	"scribe/internal/transcript"
)

type exportStage struct {
	outputDir string
	formats   []string
	now       func() time.Time
}

func (s *exportStage) SchemaVersion() int { return exportSchema }

func (s *exportStage) Execute(_ context.Context, env *pipeline.Env) (any, error) {
	source, err := pipeline.OutputAs[InspectResult](env.Outputs, config.StageInspect)
	if err != nil {
		return nil, err
	}
	segments, degraded, err := finalSegments(env.Outputs)
	if err != nil {
		return nil, err
	}

	doc := export.Document{
		RunID:       env.RunID,
		Source:      source.Source,
		Duration:    source.Duration,
		GeneratedAt: s.now().UTC(),
		Degraded:    degraded,
		Segments:    segments,
	}
	if transcribed, err := pipeline.OutputAs[TranscriptionResult](env.Outputs, config.StageTranscription); err == nil {
		doc.Language = transcribed.Language
	}
	if diarized, err := pipeline.OutputAs[DiarizationResult](env.Outputs, config.StageDiarization); err == nil && !diarized.Degraded {
		doc.Speakers = diarized.Speakers
	}
	if classified, err := pipeline.OutputAs[ClassificationResult](env.Outputs, config.StageClassification); err == nil && !classified.Degraded {
		doc.Categories = classified.Counts
	}

	dir := filepath.Join(s.outputDir, env.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, config.StageExport, "create output dir", dir, err)
	}
	files, err := export.Write(dir, doc, s.formats)
	if err != nil {
		return nil, err
	}
	env.Logger.Info("transcript exported",
		logging.String("output_dir", dir),
		logging.Int("file_count", len(files)),
		logging.Int("segment_count", len(segments)),
	)
	return ExportResult{Dir: dir, Files: files, Degraded: degraded}, nil
}

// Degrade records that nothing was written.
func (s *exportStage) Degrade(_ *pipeline.Env, cause error) any {
	return ExportResult{Skipped: true, Reason: degradeReason(cause)}
}

func (s *exportStage) Decode(raw json.RawMessage) (any, error) {
	result, err := decodeAs[ExportResult](raw)
	if err != nil {
		return nil, err
	}
	if len(result.Files) == 0 {
		return nil, fmt.Errorf("no exported files recorded")
	}
	return result, nil
}

// finalSegments returns the most enriched segments and the placeholder
// stages they passed through.
func finalSegments(outputs *pipeline.Outputs) ([]transcript.Segment, []export.DegradedStage, error) {
	var degraded []export.DegradedStage
	if diarized, err := pipeline.OutputAs[DiarizationResult](outputs, config.StageDiarization); err == nil && diarized.Degraded {
		degraded = append(degraded, export.DegradedStage{Stage: config.StageDiarization, Reason: diarized.Reason})
	}
	classified, err := pipeline.OutputAs[ClassificationResult](outputs, config.StageClassification)
	if err == nil {
		if classified.Degraded {
			degraded = append(degraded, export.DegradedStage{Stage: config.StageClassification, Reason: classified.Reason})
		}
		return classified.Segments, degraded, nil
	}
	segments, err := speakerSegments(outputs)
	return segments, degraded, err
}
