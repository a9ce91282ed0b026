package stages

import (
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"scribe/internal/chunking"
	"scribe/internal/classification"
	"scribe/internal/config"
	"scribe/internal/diarization"
	"scribe/internal/export"
	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/services"
	"scribe/internal/services/llm"
	"scribe/internal/services/whisperx"
	"scribe/internal/transcript"
	"scribe/internal/transcription"
	"scribe/internal/vad"
)

// Deps holds everything the stages need beyond configuration. Nil adapters
// make their stage fail with a configuration error, which an optional stage
// turns into placeholder output.
type Deps struct {
	Config      *config.Config
	Source      string
	Normalizer  Normalizer
	Transcriber transcription.Transcriber
	Diarizer    diarization.Diarizer
	Classifier  classification.Classifier
	Now         func() time.Time
}

// NewDeps builds the production adapters from cfg. workDir receives engine
// scratch output and should be the run's artifact directory.
func NewDeps(cfg *config.Config, source, workDir string, logger *slog.Logger) (Deps, error) {
	if cfg == nil {
		return Deps{}, services.Wrap(services.ErrConfiguration, "stages", "init", "no configuration", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return Deps{}, services.Wrap(services.ErrConfiguration, "stages", "resolve source", source, err)
	}

	wx := whisperx.NewService(whisperx.Config{
		Model:       cfg.Transcription.Model,
		Language:    cfg.Transcription.Language,
		CUDAEnabled: cfg.Transcription.CUDAEnabled,
		VADMethod:   cfg.Transcription.VADMethod,
		HFToken:     cfg.Transcription.HFToken,
	}, cfg.FFmpegBinary())

	var engine transcription.Transcriber
	switch strings.ToLower(cfg.Transcription.Engine) {
	case config.EngineWhisperX:
		engine = transcription.NewWhisperX(wx, filepath.Join(workDir, "whisperx"))
	case config.EngineOpenAI:
		engine = transcription.NewHTTP(transcription.HTTPConfig{
			BaseURL:  cfg.Transcription.BaseURL,
			APIKey:   cfg.Transcription.APIKey,
			Model:    cfg.Transcription.Model,
			Language: cfg.Transcription.Language,
		}, &http.Client{})
	default:
		return Deps{}, services.Wrap(services.ErrConfiguration, "stages", "init",
			fmt.Sprintf("unknown transcription engine %q", cfg.Transcription.Engine), nil)
	}
	if timeout := cfg.TranscriptionTimeout(); timeout > 0 {
		engine = transcription.WithTimeout(engine, timeout)
	}

	deps := Deps{
		Config:      cfg,
		Source:      abs,
		Normalizer:  wx,
		Transcriber: engine,
		Now:         time.Now,
	}
	if strings.TrimSpace(cfg.Diarization.Command) != "" {
		deps.Diarizer = diarization.NewScript(diarization.ScriptConfig{
			Command: cfg.Diarization.Command,
			Args:    cfg.Diarization.Args,
			HFToken: cfg.Diarization.HFToken,
		})
	}
	if llmCfg := cfg.GetLLM(); llmCfg.APIKey != "" {
		client := llm.NewClient(llm.Config{
			APIKey:         llmCfg.APIKey,
			BaseURL:        llmCfg.BaseURL,
			Model:          llmCfg.Model,
			Referer:        llmCfg.Referer,
			Title:          llmCfg.Title,
			TimeoutSeconds: llmCfg.TimeoutSeconds,
		})
		classifier, err := classification.NewLLM(client, cfg.Classification.Categories, cfg.Classification.BatchSize, logger)
		if err != nil {
			return Deps{}, err
		}
		deps.Classifier = classifier
	}
	return deps, nil
}

// Build returns the stage definitions in execution order.
func Build(deps Deps) ([]pipeline.Definition, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "stages", "build", "no configuration", nil)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	formats := cfg.Export.Formats
	if len(formats) == 0 {
		formats = export.Formats
	}

	handlers := map[string]pipeline.Handler{
		config.StageInspect: &inspectStage{source: deps.Source, normalizer: deps.Normalizer},
		config.StageChunking: &chunkingStage{
			params: chunking.Params{
				MaxChunk:        cfg.Chunking.MaxChunkSeconds,
				Overlap:         cfg.Chunking.OverlapSeconds,
				SearchWindow:    cfg.Chunking.SearchWindowSeconds,
				WidthSaturation: cfg.Chunking.WidthSaturationSeconds,
			},
			vad: vad.Config{
				FrameMs:         cfg.VAD.FrameMs,
				EnergyThreshold: cfg.VAD.EnergyThreshold,
				MinSpeechMs:     cfg.VAD.MinSpeechMs,
				MinSilenceMs:    cfg.VAD.MinSilenceMs,
			},
		},
		config.StageTranscription: &transcriptionStage{
			engine:      cfg.Transcription.Engine,
			language:    cfg.Transcription.Language,
			transcriber: deps.Transcriber,
			concurrency: cfg.Transcription.Concurrency,
		},
		config.StageMerging: &mergingStage{opts: transcript.MergeOptions{
			MinMatchTokens:  cfg.Merge.MinMatchTokens,
			MinMatchRatio:   cfg.Merge.MinMatchRatio,
			SpliceTolerance: cfg.Merge.SpliceTolerance,
			FailOnViolation: cfg.Merge.FailOnViolation,
		}},
		config.StageDiarization: &diarizationStage{
			diarizer: deps.Diarizer,
			timeout:  time.Duration(cfg.Diarization.TimeoutSeconds) * time.Second,
		},
		config.StageClassification: &classificationStage{classifier: deps.Classifier},
		config.StageExport:         &exportStage{outputDir: cfg.Paths.OutputDir, formats: formats, now: now},
	}

	defs := make([]pipeline.Definition, 0, len(config.StageNames))
	for _, name := range config.StageNames {
		policy := pipeline.PolicyCritical
		if cfg.StageOptional(name) {
			policy = pipeline.PolicyOptional
		}
		defs = append(defs, pipeline.Definition{
			Name:    name,
			Policy:  policy,
			Enabled: cfg.StageEnabled(name),
			Handler: handlers[name],
		})
	}
	return defs, nil
}
