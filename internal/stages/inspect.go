package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"scribe/internal/audio"
	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/services"
)

// normalizedName is the converted source inside the artifact directory.
const normalizedName = "source.wav"

// Normalizer converts arbitrary audio into 16-bit PCM WAV.
type Normalizer interface {
	Normalize(ctx context.Context, source, dest string) error
}

type inspectStage struct {
	source     string
	normalizer Normalizer
}

func (s *inspectStage) SchemaVersion() int { return inspectSchema }

func (s *inspectStage) Execute(ctx context.Context, env *pipeline.Env) (any, error) {
	info, err := os.Stat(s.source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, config.StageInspect, "stat source", s.source, err)
		}
		return nil, services.Wrap(services.ErrValidation, config.StageInspect, "stat source", s.source, err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, config.StageInspect, "stat source", "source is a directory", nil)
	}

	env.Tick("hashing source")
	digest, size, err := fileutil.SHA256File(s.source)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, config.StageInspect, "hash source", s.source, err)
	}

	result := InspectResult{Source: s.source, SourceDigest: digest, SourceSize: size, AudioPath: s.source}
	wav, err := audio.OpenWAV(s.source)
	if err != nil {
		if !errors.Is(err, audio.ErrUnsupportedFormat) || s.normalizer == nil {
			return nil, services.Wrap(services.ErrValidation, config.StageInspect, "open source",
				"source is not a readable 16-bit PCM WAV", err)
		}
		env.Logger.Info("source needs conversion",
			logging.String("reason", err.Error()),
			logging.String(logging.FieldEventType, "source_normalize"),
		)
		env.Tick("normalizing audio")
		dest := filepath.Join(env.ArtifactDir, normalizedName)
		if nerr := s.normalizer.Normalize(ctx, s.source, dest); nerr != nil {
			return nil, services.Wrap(services.ErrExternalTool, config.StageInspect, "normalize", s.source, nerr)
		}
		wav, err = audio.OpenWAV(dest)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, config.StageInspect, "open normalized audio", dest, err)
		}
		result.AudioPath = dest
		result.Normalized = true
	}
	defer wav.Close()

	header := wav.Info()
	result.SampleRate = header.SampleRate
	result.Channels = header.Channels
	result.Duration = header.Duration()
	env.Logger.Info("source inspected",
		logging.String("source_path", s.source),
		logging.Float64("duration_seconds", result.Duration),
		logging.Int("sample_rate", result.SampleRate),
		logging.Int("channels", result.Channels),
		logging.Bool("normalized", result.Normalized),
		logging.String("digest", digest),
	)
	return result, nil
}

// Decode also rejects the checkpoint when the source file changed since it
// was written, which forces every later stage to run again.
func (s *inspectStage) Decode(raw json.RawMessage) (any, error) {
	result, err := decodeAs[InspectResult](raw)
	if err != nil {
		return nil, err
	}
	if result.Source != s.source {
		return nil, fmt.Errorf("checkpoint is for source %s", result.Source)
	}
	digest, _, err := fileutil.SHA256File(s.source)
	if err != nil {
		return nil, fmt.Errorf("hash source: %w", err)
	}
	if digest != result.SourceDigest {
		return nil, errors.New("source content changed since the checkpoint was written")
	}
	return result, nil
}
