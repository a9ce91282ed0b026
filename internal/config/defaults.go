package config

// Stage names in execution order.
const (
	StageInspect        = "inspect"
	StageChunking       = "chunking"
	StageTranscription  = "transcription"
	StageMerging        = "merging"
	StageDiarization    = "diarization"
	StageClassification = "classification"
	StageExport         = "export"
)

// StageNames lists every stage in execution order.
var StageNames = []string{
	StageInspect,
	StageChunking,
	StageTranscription,
	StageMerging,
	StageDiarization,
	StageClassification,
	StageExport,
}

// CoreStages cannot be disabled or made optional.
var CoreStages = []string{StageInspect, StageChunking, StageTranscription, StageMerging}

const (
	EngineWhisperX = "whisperx"
	EngineOpenAI   = "openai"
)

const (
	defaultConfigPath             = "~/.config/scribe/config.toml"
	defaultStateDir               = "~/.local/share/scribe/state"
	defaultLogDir                 = "~/.local/share/scribe/logs"
	defaultOutputDir              = "~/transcripts"
	defaultMaxChunkSeconds        = 600
	defaultOverlapSeconds         = 5
	defaultSearchWindowSeconds    = 30
	defaultWidthSaturationSeconds = 0.5
	defaultVADFrameMs             = 30
	defaultVADEnergyThreshold     = 500
	defaultVADMinSpeechMs         = 90
	defaultVADMinSilenceMs        = 300
	defaultWhisperXModel          = "large-v3"
	defaultWhisperXVADMethod      = "silero"
	defaultOpenAIBaseURL          = "https://api.openai.com/v1"
	defaultOpenAIModel            = "whisper-1"
	defaultTranscriptionWorkers   = 1
	defaultTranscriptionTimeout   = 1800
	defaultMinMatchTokens         = 3
	defaultMinMatchRatio          = 0.5
	defaultSpliceTolerance        = 0.05
	defaultDiarizationTimeout     = 3600
	defaultClassificationBatch    = 40
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-3-flash-preview"
	defaultLLMReferer             = "https://github.com/scribe-audio/scribe"
	defaultLLMTitle               = "scribe segment classifier"
	defaultLLMTimeoutSeconds      = 60
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogMaxSizeMB           = 50
	defaultLogMaxBackups          = 5
	defaultLogMaxAgeDays          = 30
	defaultMetricsListen          = "127.0.0.1:9466"
	defaultNtfyTimeoutSeconds     = 10
)

var defaultCategories = []string{"discussion", "question", "answer", "announcement", "off_topic"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
		},
		Chunking: Chunking{
			MaxChunkSeconds:        defaultMaxChunkSeconds,
			OverlapSeconds:         defaultOverlapSeconds,
			SearchWindowSeconds:    defaultSearchWindowSeconds,
			WidthSaturationSeconds: defaultWidthSaturationSeconds,
		},
		VAD: VAD{
			FrameMs:         defaultVADFrameMs,
			EnergyThreshold: defaultVADEnergyThreshold,
			MinSpeechMs:     defaultVADMinSpeechMs,
			MinSilenceMs:    defaultVADMinSilenceMs,
		},
		Transcription: Transcription{
			Engine:         EngineWhisperX,
			Model:          defaultWhisperXModel,
			Language:       "en",
			VADMethod:      defaultWhisperXVADMethod,
			Concurrency:    defaultTranscriptionWorkers,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Merge: Merge{
			MinMatchTokens:  defaultMinMatchTokens,
			MinMatchRatio:   defaultMinMatchRatio,
			SpliceTolerance: defaultSpliceTolerance,
		},
		Diarization: Diarization{
			TimeoutSeconds: defaultDiarizationTimeout,
		},
		Classification: Classification{
			Categories: append([]string(nil), defaultCategories...),
			BatchSize:  defaultClassificationBatch,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Export: Export{
			Formats: []string{"json", "txt", "srt"},
		},
		Stages: Stages{
			Optional: []string{StageDiarization, StageClassification, StageExport},
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
			NotifySuccess:         true,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
		Metrics: Metrics{
			Listen: defaultMetricsListen,
		},
	}
}
