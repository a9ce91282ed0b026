package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	OutputDir string `toml:"output_dir"`
}

// Chunking contains boundary planner settings, all in seconds.
type Chunking struct {
	MaxChunkSeconds        float64 `toml:"max_chunk_seconds"`
	OverlapSeconds         float64 `toml:"overlap_seconds"`
	SearchWindowSeconds    float64 `toml:"search_window_seconds"`
	WidthSaturationSeconds float64 `toml:"width_saturation_seconds"`
}

// VAD contains voice activity detector thresholds.
type VAD struct {
	FrameMs         int     `toml:"frame_ms"`
	EnergyThreshold float64 `toml:"energy_threshold"`
	MinSpeechMs     int     `toml:"min_speech_ms"`
	MinSilenceMs    int     `toml:"min_silence_ms"`
}

// Transcription contains speech-to-text engine settings.
type Transcription struct {
	// Engine selects the adapter: "whisperx" (local CLI) or "openai" (HTTP).
	Engine         string `toml:"engine"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	CUDAEnabled    bool   `toml:"cuda_enabled"`
	VADMethod      string `toml:"vad_method"`
	HFToken        string `toml:"hf_token"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Concurrency    int    `toml:"concurrency"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Merge contains overlap reconciliation thresholds.
type Merge struct {
	MinMatchTokens  int     `toml:"min_match_tokens"`
	MinMatchRatio   float64 `toml:"min_match_ratio"`
	SpliceTolerance float64 `toml:"splice_tolerance"`
	FailOnViolation bool    `toml:"fail_on_violation"`
}

// Diarization contains settings for the external diarization script.
type Diarization struct {
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	HFToken        string   `toml:"hf_token"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Classification contains segment categorisation settings.
type Classification struct {
	Categories []string `toml:"categories"`
	BatchSize  int      `toml:"batch_size"`
}

// LLM contains LLM connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Export contains transcript rendering settings.
type Export struct {
	Formats []string `toml:"formats"`
}

// Stages contains per-stage enable flags and failure policy overrides.
type Stages struct {
	Disabled []string `toml:"disabled"`
	Optional []string `toml:"optional"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Notifications contains ntfy delivery settings.
type Notifications struct {
	// NtfyTopic is the full topic URL, e.g. https://ntfy.sh/my-transcripts.
	// Empty disables notifications.
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	NotifySuccess         bool   `toml:"notify_success"`
}

// Metrics contains the Prometheus endpoint configuration.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// Config encapsulates all configuration values for scribe.
//
// Configuration sections by subsystem:
//   - Paths: state, log, and output directories
//   - Chunking, VAD: boundary planning over long recordings
//   - Transcription: speech-to-text engine and concurrency
//   - Merge: overlap reconciliation thresholds
//   - Diarization, Classification, LLM: optional enrichment stages
//   - Export: transcript formats
//   - Stages: which stages run and which may degrade
//   - Notifications: ntfy messages when runs finish
//   - Logging, Metrics: observability
type Config struct {
	Paths          Paths          `toml:"paths"`
	Chunking       Chunking       `toml:"chunking"`
	VAD            VAD            `toml:"vad"`
	Transcription  Transcription  `toml:"transcription"`
	Merge          Merge          `toml:"merge"`
	Diarization    Diarization    `toml:"diarization"`
	Classification Classification `toml:"classification"`
	LLM            LLM            `toml:"llm"`
	Export         Export         `toml:"export"`
	Stages         Stages         `toml:"stages"`
	Notifications  Notifications  `toml:"notifications"`
	Logging        Logging        `toml:"logging"`
	Metrics        Metrics        `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. A missing file
// yields defaults; a malformed one is an error. The returned config has all
// path fields expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, log, and output directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RegistryPath returns the SQLite run registry location.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

// FFmpegBinary returns the ffmpeg executable name used for audio normalisation.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// TranscriptionTimeout returns the per-chunk transcription deadline.
func (c *Config) TranscriptionTimeout() time.Duration {
	return time.Duration(c.Transcription.TimeoutSeconds) * time.Second
}

// StageEnabled reports whether the named stage should execute.
func (c *Config) StageEnabled(name string) bool {
	return !containsStage(c.Stages.Disabled, name)
}

// StageOptional reports whether a failure of the named stage degrades the run
// instead of aborting it.
func (c *Config) StageOptional(name string) bool {
	return containsStage(c.Stages.Optional, name)
}

func containsStage(list []string, name string) bool {
	for _, candidate := range list {
		if strings.EqualFold(strings.TrimSpace(candidate), name) {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains LLM connection settings after trimming.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}
