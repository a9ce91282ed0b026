package stages

import (
	"context"
	"encoding/json"

	"scribe/internal/classification"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/services"
)

type classificationStage struct {
	classifier classification.Classifier
}

func (s *classificationStage) SchemaVersion() int { return classificationSchema }

func (s *classificationStage) Execute(ctx context.Context, env *pipeline.Env) (any, error) {
	if s.classifier == nil {
		return nil, services.Wrap(services.ErrConfiguration, config.StageClassification, "init",
			"no classifier configured (set llm.api_key)", nil)
	}
	segments, err := speakerSegments(env.Outputs)
	if err != nil {
		return nil, err
	}
	env.Tick("classifying segments")
	labelled, err := s.classifier.Classify(ctx, segments)
	if err != nil {
		return nil, err
	}
	if len(labelled) != len(segments) {
		return nil, services.Wrap(services.ErrValidation, config.StageClassification, "classify",
			"classifier changed the segment count", nil)
	}
	result := ClassificationResult{Segments: labelled, Counts: classification.Counts(labelled)}
	env.Logger.Info("segments classified",
		logging.Int("segment_count", len(labelled)),
		logging.Int("category_count", len(result.Counts)),
	)
	return result, nil
}

// Degrade marks every segment uncategorized.
func (s *classificationStage) Degrade(env *pipeline.Env, cause error) any {
	segments, _ := speakerSegments(env.Outputs)
	return ClassificationResult{
		Segments: classification.Degrade(segments),
		Degraded: true,
		Reason:   degradeReason(cause),
	}
}

func (s *classificationStage) Decode(raw json.RawMessage) (any, error) {
	return decodeAs[ClassificationResult](raw)
}
